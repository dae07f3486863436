package persistence

import (
	"context"
	"time"

	"bugtriage/pkg/triage"
)

// RunFromTrace flattens a trace into its stored form.
func RunFromTrace(trace *triage.Trace, runErr error) *Run {
	run := &Run{
		RunID:      trace.RunID,
		Input:      trace.Input,
		Severity:   string(trace.Severity),
		Error:      trace.Error,
		StartedAt:  trace.StartedAt,
		FinishedAt: trace.FinishedAt,
		DurationMS: trace.Duration().Milliseconds(),
	}
	if run.Error == "" && runErr != nil {
		run.Error = runErr.Error()
	}
	for _, st := range trace.States {
		run.States = append(run.States, string(st))
	}
	if out := trace.Output; out != nil {
		run.Status = out.Status
		run.Reason = out.Reason
		if out.Severity != "" {
			run.Severity = string(out.Severity)
		}
		run.ActionTaken = out.ActionTaken
		run.TicketID = out.TicketID
		run.CreatedTicketID = out.CreatedTicketID
		run.Summary = out.Summary
		run.ToolsUsed = out.ToolsUsed
		run.StepsTaken = out.StepsTaken
		run.Retries = out.Retries
	} else {
		run.Status = "error"
	}
	for i, inv := range trace.ToolCalls {
		run.ToolCalls = append(run.ToolCalls, ToolCall{
			Seq:        i + 1,
			CallID:     inv.CallID,
			ToolName:   inv.Name,
			Args:       inv.Args,
			Output:     inv.Output,
			IsError:    inv.IsError,
			DurationMS: inv.Duration.Milliseconds(),
		})
	}
	return run
}

// OnState implements triage.Observer. Runs are stored whole on finish.
func (s *Store) OnState(context.Context, triage.StateEvent) {}

// OnToolCall implements triage.Observer.
func (s *Store) OnToolCall(context.Context, string, triage.ToolInvocation) {}

// OnFinish implements triage.Observer by persisting the finished run. Failures are logged;
// history is best effort and never fails a run.
func (s *Store) OnFinish(ctx context.Context, trace *triage.Trace, err error) {
	// The run context may already be cancelled by its deadline.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if werr := s.ops.InsertRun(writeCtx, RunFromTrace(trace, err)); werr != nil {
		s.logger.Error("Failed to persist run %s: %v", trace.RunID, werr)
	}
}
