package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bugtriage/pkg/logx"
	"bugtriage/pkg/signals"
	"bugtriage/pkg/tools"
)

// DecisionMaker proposes the next message for a transcript. Returned messages may request
// tool calls. Calls are synchronous.
type DecisionMaker interface {
	Decide(ctx context.Context, transcript []Message) (Message, error)
}

// DecisionMakerFunc adapts a function to DecisionMaker.
type DecisionMakerFunc func(ctx context.Context, transcript []Message) (Message, error)

func (f DecisionMakerFunc) Decide(ctx context.Context, transcript []Message) (Message, error) {
	return f(ctx, transcript)
}

// ToolExecutor runs a named tool. tools.ErrInvalidArguments and tools.ErrUnknownTool are
// reported back to the decision-maker; any other error ends the run.
type ToolExecutor interface {
	Exec(ctx context.Context, name string, args map[string]any) (*tools.ExecResult, error)
}

// Options configure an Orchestrator. Zero values select defaults.
type Options struct {
	// MaxRetries bounds failed verifications that are retried. Negative disables retries.
	MaxRetries    int
	TicketPrefix  string
	SummaryMaxLen int
	SystemPrompt  string
	// RunTimeout bounds a whole run when positive.
	RunTimeout time.Duration
	Observer   Observer
	NewRunID   func() string
}

// Default option values.
const (
	DefaultMaxRetries    = 3
	DefaultTicketPrefix  = "CSE"
	DefaultSummaryMaxLen = 300
)

// Orchestrator drives triage runs. It holds no per-run state and is safe for concurrent use.
type Orchestrator struct {
	dm       DecisionMaker
	tools    ToolExecutor
	matcher  *signals.Matcher
	opts     Options
	observer Observer
	logger   *logx.Logger
}

// New creates an orchestrator.
func New(dm DecisionMaker, exec ToolExecutor, opts Options) *Orchestrator {
	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}
	if opts.TicketPrefix == "" {
		opts.TicketPrefix = DefaultTicketPrefix
	}
	if opts.SummaryMaxLen <= 0 {
		opts.SummaryMaxLen = DefaultSummaryMaxLen
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.NewRunID == nil {
		opts.NewRunID = uuid.NewString
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	return &Orchestrator{
		dm:       dm,
		tools:    exec,
		matcher:  signals.NewMatcher(opts.TicketPrefix),
		opts:     opts,
		observer: observer,
		logger:   logx.NewLogger("triage"),
	}
}

// Run triages userText and returns the final record.
func (o *Orchestrator) Run(ctx context.Context, userText string) (FinalOutput, error) {
	trace, err := o.RunWithTrace(ctx, userText)
	if err != nil {
		return FinalOutput{}, err
	}
	return *trace.Output, nil
}

// RunWithTrace triages userText and returns the full trace. On a fatal error the partial
// trace is returned together with a *RunError.
func (o *Orchestrator) RunWithTrace(ctx context.Context, userText string) (*Trace, error) {
	runID := o.opts.NewRunID()
	ctx = logx.WithRunID(ctx, runID)
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	r := &run{
		o:     o,
		id:    runID,
		ws:    NewWorkflowState(o.opts.MaxRetries),
		trace: &Trace{RunID: runID, Input: userText, StartedAt: time.Now()},
	}
	r.ws.append(
		Message{Role: RoleSystem, Content: o.opts.SystemPrompt},
		Message{Role: RoleUser, Content: userText},
	)

	o.logger.Info("run %s started", runID)
	err := r.drive(ctx)

	r.trace.FinishedAt = time.Now()
	r.trace.Severity = r.ws.Severity
	r.trace.Transcript = r.ws.Transcript()
	r.trace.Output = r.ws.FinalOutput
	if err != nil {
		r.trace.Error = err.Error()
		o.logger.Error("run %s failed: %v", runID, err)
	} else {
		o.logger.Info("run %s finished: status=%s severity=%s action=%s retries=%d",
			runID, r.ws.FinalOutput.Status, r.ws.Severity, r.ws.FinalOutput.ActionTaken, r.ws.RetryCount)
	}
	o.observer.OnFinish(ctx, r.trace, err)
	return r.trace, err
}

// run is the per-run driver state.
type run struct {
	o     *Orchestrator
	id    string
	ws    *WorkflowState
	trace *Trace
}

func (r *run) drive(ctx context.Context) error {
	state := StateClassify
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return r.fail(state, err)
		}

		r.ws.StepCount++
		r.trace.States = append(r.trace.States, state)
		r.o.observer.OnState(ctx, StateEvent{
			RunID: r.id, State: state, Step: r.ws.StepCount, Retry: r.ws.RetryCount,
			Severity: r.ws.Severity, At: time.Now(),
		})
		logx.DebugState(ctx, "triage", "enter", string(state))

		delta, err := r.step(ctx, state)
		if err != nil {
			return r.fail(state, err)
		}
		r.ws.append(delta...)

		next := Next(state, r.ws)
		if !IsValidTransition(state, next) {
			return r.fail(state, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, state, next))
		}
		state = next
	}
	return nil
}

func (r *run) fail(state State, err error) error {
	return &RunError{RunID: r.id, State: state, Err: err}
}

// step runs one node and returns the messages it produced.
func (r *run) step(ctx context.Context, state State) ([]Message, error) {
	switch state {
	case StateClassify:
		return nil, r.classify(ctx)
	case StateSearch:
		return []Message{SearchDirective(r.ws.Severity)}, nil
	case StateAgentTurn:
		return r.agentTurn(ctx)
	case StateToolExec:
		return r.execTools(ctx)
	case StateAct:
		return r.act(), nil
	case StateVerify:
		return r.verify(), nil
	case StateFinalize:
		return nil, r.finalize()
	default:
		return nil, ValidateState(state)
	}
}

func (r *run) classify(ctx context.Context) error {
	v := Classify(r.ws.FirstUserText())
	if err := r.ws.setVerdict(v); err != nil {
		return err
	}
	logx.Debug(ctx, "triage", "classified %q as %s via %s", r.ws.FirstUserText(), v.Severity, v.Rule)
	if v.Rejected() {
		r.ws.WorkflowDone = true
		return r.ws.setFinalOutput(rejectedOutput(r.ws))
	}
	return nil
}

func (r *run) agentTurn(ctx context.Context) ([]Message, error) {
	msg, err := r.o.dm.Decide(ctx, r.ws.Transcript())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecisionMaker, err)
	}
	msg.Role = RoleDecisionMaker
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", r.ws.StepCount, i)
		}
	}
	return []Message{msg}, nil
}

func (r *run) execTools(ctx context.Context) ([]Message, error) {
	last, _ := r.ws.Last()
	results := make([]Message, 0, len(last.ToolCalls))
	for _, call := range last.ToolCalls {
		start := time.Now()
		res, err := r.o.tools.Exec(ctx, call.Name, call.Args)
		inv := ToolInvocation{CallID: call.ID, Name: call.Name, Args: call.Args, Duration: time.Since(start)}

		switch {
		case err == nil:
			inv.Output = res.Content
		case errors.Is(err, tools.ErrInvalidArguments) || errors.Is(err, tools.ErrUnknownTool):
			inv.Output = "Error: " + err.Error()
			inv.IsError = true
		default:
			inv.Output = err.Error()
			inv.IsError = true
			r.record(ctx, inv)
			return nil, fmt.Errorf("%w: %s: %w", ErrTool, call.Name, err)
		}

		r.record(ctx, inv)
		results = append(results, Message{
			Role:       RoleToolResult,
			Content:    inv.Output,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    inv.IsError,
		})
	}
	return results, nil
}

func (r *run) record(ctx context.Context, inv ToolInvocation) {
	r.ws.recordInvocation(inv)
	r.trace.ToolCalls = append(r.trace.ToolCalls, inv)
	r.o.observer.OnToolCall(ctx, r.id, inv)
}

func (r *run) act() []Message {
	if !r.ws.DuplicateFound {
		if key, ok := DetectDuplicate(r.o.matcher, r.ws.transcript); ok {
			_ = r.ws.setDuplicate(key)
		}
	}
	r.ws.ActionIssued = true
	return []Message{ActionDirective(r.ws)}
}

func (r *run) verify() []Message {
	report := Verify(r.o.matcher, Evidence{
		Severity:     r.ws.Severity,
		Text:         r.ws.ObservableText(),
		DecisionText: r.ws.DecisionText(),
		Invoked:      r.ws.InvokedTools(),
	}, len(r.trace.Reports)+1)
	r.trace.Reports = append(r.trace.Reports, report)

	delta := applyVerification(r.ws, &report)
	if !report.Passed() {
		r.o.logger.Warn("run %s: verification attempt %d failed %v (retry %d/%d)",
			r.id, report.Attempt, report.Failed(), r.ws.RetryCount, r.ws.MaxRetries)
	}
	return delta
}

func (r *run) finalize() error {
	if r.ws.FinalOutput != nil {
		return nil
	}
	return r.ws.setFinalOutput(Finalize(r.o.matcher, r.ws, r.o.opts.SummaryMaxLen))
}
