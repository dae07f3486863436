package golden_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/internal/mocks"
	"bugtriage/pkg/chatlog"
	"bugtriage/pkg/config"
	"bugtriage/pkg/fixtures"
	"bugtriage/pkg/golden"
	"bugtriage/pkg/issues"
	"bugtriage/pkg/tools"
	"bugtriage/pkg/tracker"
	"bugtriage/pkg/triage"
)

func TestParseValidates(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"empty", "test_cases: []", "no test_cases"},
		{"missing id", "test_cases:\n  - query: q", "has no id"},
		{"missing query", "test_cases:\n  - id: a", "has no query"},
		{"duplicate", "test_cases:\n  - {id: a, query: q}\n  - {id: a, query: r}", "duplicate"},
		{"bad yaml", "test_cases: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := golden.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTestdata(t *testing.T) {
	cases, err := golden.Load("testdata/golden.yaml")
	require.NoError(t, err)
	require.Len(t, cases, 8)
	assert.Equal(t, "duplicate_login", cases[0].ID)
	assert.Equal(t, []string{tools.ToolTicketCreate}, cases[2].MustCall)
}

func traceWith(text string, status string, toolNames ...string) *triage.Trace {
	var calls []triage.ToolCall
	for _, n := range toolNames {
		calls = append(calls, triage.ToolCall{ID: n, Name: n})
	}
	tr := &triage.Trace{Transcript: []triage.Message{
		{Role: triage.RoleUser, Content: "user text is not graded"},
		{Role: triage.RoleDecisionMaker, ToolCalls: calls},
		{Role: triage.RoleDecisionMaker, Content: text},
	}}
	if status != "" {
		tr.Output = &triage.FinalOutput{Status: status}
	}
	return tr
}

func TestEvaluateAxes(t *testing.T) {
	c := &golden.Case{
		ExpectedTools:  []string{tools.ToolTicketSearch},
		MustNotCall:    []string{tools.ToolTicketCreate},
		MustContain:    []string{"cse-1"},
		MustNotContain: []string{"created ticket"},
	}

	got := golden.Evaluate(c, traceWith("Found CSE-1 already open.", triage.StatusComplete, tools.ToolTicketSearch))
	assert.True(t, got.Passed())

	got = golden.Evaluate(c, traceWith("Found CSE-1.", triage.StatusComplete, tools.ToolTicketSearch, tools.ToolTicketCreate))
	assert.False(t, got.Tools)
	assert.True(t, got.Content)

	got = golden.Evaluate(c, traceWith("Found CSE-1.", "", tools.ToolTicketSearch))
	assert.False(t, got.Completion)

	got = golden.Evaluate(c, traceWith("Nothing here. Created ticket CSE-9.", triage.StatusComplete, tools.ToolTicketSearch))
	assert.False(t, got.Content)
	assert.False(t, got.Negative)

	got = golden.Evaluate(&golden.Case{MustContain: []string{"[p0] (urgent)"}}, traceWith("Escalated [P0] (URGENT) to on-call.", ""))
	assert.True(t, got.Content, "phrases match literally and ignore case")

	got = golden.Evaluate(&golden.Case{MustContain: []string{"user text"}}, traceWith("x", ""))
	assert.False(t, got.Content, "user messages are not observable text")
	assert.True(t, got.Completion, "completion is only required when tools are expected")
}

func seededOrchestrator(t *testing.T) *triage.Orchestrator {
	t.Helper()
	data := &config.DataConfig{Dir: t.TempDir(), TicketsFile: "tickets.json", ChatFile: "chat.json", IssuesFile: "issues.json"}
	require.NoError(t, fixtures.Seed(data, "CSE"))
	catalog, err := tools.NewTriageCatalog(time.Second,
		tracker.NewStore(data.TicketsPath(), "CSE"),
		chatlog.NewStore(data.ChatPath()),
		issues.NewFileSource(data.IssuesPath()))
	require.NoError(t, err)
	return triage.New(mocks.NewPolicyDecider("CSE"), catalog, triage.Options{})
}

func TestRunnerGoldenSet(t *testing.T) {
	cases, err := golden.Load("testdata/golden.yaml")
	require.NoError(t, err)

	report, err := golden.NewRunner(seededOrchestrator(t), 2).Run(context.Background(), cases)
	require.NoError(t, err)

	require.Len(t, report.Results, len(cases))
	for i, res := range report.Results {
		assert.Equal(t, cases[i].ID, res.Case.ID, "results keep case order")
		assert.True(t, res.Passed(), "%s: %+v %s", res.Case.ID, res.Checks, res.Error)
		assert.NotEmpty(t, res.RunID)
	}
	assert.Equal(t, 100.0, report.Percent())

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf))
	assert.Contains(t, buf.String(), "✓ duplicate_login: Login failure in production")
	assert.Contains(t, buf.String(), "Results: 8/8 passed (100.0%)")
}

type failingTracer struct{}

func (failingTracer) RunWithTrace(context.Context, string) (*triage.Trace, error) {
	return &triage.Trace{RunID: "r"}, errors.New("decision maker unavailable")
}

func TestRunnerGradesFailedRuns(t *testing.T) {
	report, err := golden.NewRunner(failingTracer{}, 0).Run(context.Background(),
		[]golden.Case{{ID: "a", Query: "q"}})
	require.NoError(t, err)

	res := report.Results[0]
	assert.False(t, res.Passed())
	assert.False(t, res.Checks.Completion)
	assert.Equal(t, "decision maker unavailable", res.Error)
	assert.Zero(t, report.Percent())

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf))
	assert.True(t, strings.HasPrefix(buf.String(), "✗ a: q"))
	assert.Contains(t, buf.String(), "Error: decision maker unavailable")
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := golden.NewRunner(failingTracer{}, 1).Run(ctx, []golden.Case{{ID: "a", Query: "q"}})
	assert.ErrorIs(t, err, context.Canceled)
}
