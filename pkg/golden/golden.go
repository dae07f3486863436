// Package golden replays a fixed set of triage queries and grades each run on four axes:
// tools invoked, completion produced, required content present and forbidden content absent.
package golden

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"bugtriage/pkg/logx"
	"bugtriage/pkg/triage"
)

// Case is one golden query and its expectations.
type Case struct {
	ID             string   `yaml:"id"`
	Query          string   `yaml:"query"`
	ExpectedTools  []string `yaml:"expected_tools"`
	MustCall       []string `yaml:"must_call"`
	MustNotCall    []string `yaml:"must_not_call"`
	MustContain    []string `yaml:"must_contain"`
	MustNotContain []string `yaml:"must_not_contain"`
}

// File is the on-disk layout of a golden set.
type File struct {
	TestCases []Case `yaml:"test_cases"`
}

// Load reads and validates a golden-set file.
func Load(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read golden set: %w", err)
	}
	return Parse(data)
}

// Parse decodes a golden set. Every case needs a unique id and a query.
func Parse(data []byte) ([]Case, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse golden set: %w", err)
	}
	if len(f.TestCases) == 0 {
		return nil, fmt.Errorf("golden set has no test_cases")
	}
	seen := make(map[string]bool, len(f.TestCases))
	for i := range f.TestCases {
		c := &f.TestCases[i]
		if c.ID == "" {
			return nil, fmt.Errorf("test case %d has no id", i+1)
		}
		if c.Query == "" {
			return nil, fmt.Errorf("test case %s has no query", c.ID)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("duplicate test case id %s", c.ID)
		}
		seen[c.ID] = true
	}
	return f.TestCases, nil
}

// Checks holds the four axes. All must hold for a case to pass.
type Checks struct {
	Tools      bool `json:"tools"`
	Completion bool `json:"completion"`
	Content    bool `json:"content"`
	Negative   bool `json:"negative"`
}

// Passed reports whether every axis held.
func (c Checks) Passed() bool {
	return c.Tools && c.Completion && c.Content && c.Negative
}

// Result is the graded outcome of one case.
type Result struct {
	Case   Case   `json:"case"`
	RunID  string `json:"run_id,omitempty"`
	Status string `json:"status,omitempty"`
	Checks Checks `json:"checks"`
	Error  string `json:"error,omitempty"`
}

// Passed reports whether the case passed.
func (r *Result) Passed() bool { return r.Checks.Passed() }

// Evaluate grades a trace against a case. Tool checks use every tool the decision-maker
// requested; content checks use the observable transcript text, case-insensitively.
func Evaluate(c *Case, trace *triage.Trace) Checks {
	checks := Checks{Tools: true, Completion: true, Content: true, Negative: true}
	requested := trace.RequestedTools()

	for _, tool := range c.ExpectedTools {
		if !slices.Contains(requested, tool) {
			checks.Tools = false
		}
	}
	for _, tool := range c.MustCall {
		if !slices.Contains(requested, tool) {
			checks.Tools = false
		}
	}
	for _, tool := range c.MustNotCall {
		if slices.Contains(requested, tool) {
			checks.Tools = false
		}
	}

	if len(c.ExpectedTools) > 0 && trace.Status() == "" {
		checks.Completion = false
	}

	text := trace.ResponseText()
	for _, phrase := range c.MustContain {
		if !containsFold(text, phrase) {
			checks.Content = false
		}
	}
	for _, phrase := range c.MustNotContain {
		if containsFold(text, phrase) {
			checks.Negative = false
		}
	}
	return checks
}

func containsFold(text, phrase string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(phrase))
}

// Tracer runs one query and returns its trace. *triage.Orchestrator satisfies it.
type Tracer interface {
	RunWithTrace(ctx context.Context, input string) (*triage.Trace, error)
}

// Runner replays golden cases.
type Runner struct {
	tracer      Tracer
	concurrency int
	logger      *logx.Logger
}

// NewRunner creates a runner. concurrency < 1 runs cases one at a time.
func NewRunner(tracer Tracer, concurrency int) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{tracer: tracer, concurrency: concurrency, logger: logx.NewLogger("golden")}
}

// Run evaluates every case and returns results in case order. A failing run is graded, not
// returned as an error; only context cancellation aborts the set.
func (r *Runner) Run(ctx context.Context, cases []Case) (*Report, error) {
	results := make([]Result, len(cases))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(r.concurrency)

	for i := range cases {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err //nolint:wrapcheck // cancellation passes through
			}
			results[i] = r.runCase(egCtx, &cases[i])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("golden run aborted: %w", err)
	}
	return &Report{Results: results}, nil
}

func (r *Runner) runCase(ctx context.Context, c *Case) Result {
	res := Result{Case: *c}
	trace, err := r.tracer.RunWithTrace(ctx, c.Query)
	if trace == nil {
		trace = &triage.Trace{}
	}
	res.RunID = trace.RunID
	res.Status = trace.Status()
	res.Checks = Evaluate(c, trace)
	if err != nil {
		res.Error = err.Error()
		res.Checks.Completion = false
	}
	r.logger.Debug("case %s: %+v", c.ID, res.Checks)
	return res
}

// Report is the outcome of a golden run.
type Report struct {
	Results []Result `json:"results"`
}

// Passed counts passing cases.
func (r *Report) Passed() int {
	n := 0
	for i := range r.Results {
		if r.Results[i].Passed() {
			n++
		}
	}
	return n
}

// Percent is the pass rate in [0, 100].
func (r *Report) Percent() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	return float64(r.Passed()) / float64(len(r.Results)) * 100
}

func mark(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗"
}

// Write prints one block per case and a closing pass-rate line.
func (r *Report) Write(w io.Writer) error {
	for i := range r.Results {
		res := &r.Results[i]
		c := res.Checks
		if _, err := fmt.Fprintf(w, "%s %s: %s\n  Tools: %s  Completion: %s  Content: %s  Negative: %s\n",
			mark(res.Passed()), res.Case.ID, res.Case.Query,
			mark(c.Tools), mark(c.Completion), mark(c.Content), mark(c.Negative)); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		if res.Error != "" {
			if _, err := fmt.Fprintf(w, "  Error: %s\n", res.Error); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	_, err := fmt.Fprintf(w, "----------------------------------------\nResults: %d/%d passed (%.1f%%)\n",
		r.Passed(), len(r.Results), r.Percent())
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
