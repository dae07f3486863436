package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	llmmetrics "bugtriage/pkg/agent/middleware/metrics"
	"bugtriage/pkg/persistence"
	"bugtriage/pkg/triage"
)

const previewLen = 160

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "…"
}

func printOutput(w io.Writer, out *triage.FinalOutput) {
	if out.Status == triage.StatusRejected {
		fmt.Fprintf(w, "🚫 Rejected: %s\n", out.Reason)
		return
	}
	fmt.Fprintf(w, "Severity: %s\n", out.Severity)
	switch out.ActionTaken {
	case triage.ActionCreatedNewTicket:
		fmt.Fprintf(w, "Action:   %s (%s)\n", out.ActionTaken, out.CreatedTicketID)
	case triage.ActionFoundDuplicate:
		fmt.Fprintf(w, "Action:   %s (%s)\n", out.ActionTaken, out.TicketID)
	default:
		fmt.Fprintf(w, "Action:   %s\n", out.ActionTaken)
	}
	fmt.Fprintf(w, "Tools:    %s\n", strings.Join(out.ToolsUsed, ", "))
	fmt.Fprintf(w, "Steps:    %d (retries %d)\n", out.StepsTaken, out.Retries)
	if out.Summary != "" {
		fmt.Fprintf(w, "Summary:  %s\n", out.Summary)
	}
}

func printUsageLine(w io.Writer, usage *llmmetrics.InternalRecorder, runID string) {
	u, ok := usage.Usage(runID)
	if !ok {
		return
	}
	fmt.Fprintf(w, "LLM:      %d requests, %d tokens (%d prompt, %d completion) in %s",
		u.Requests, u.TotalTokens(), u.PromptTokens, u.CompletionTokens, u.Latency.Round(time.Millisecond))
	if u.CostUSD > 0 {
		fmt.Fprintf(w, ", ~$%.4f", u.CostUSD)
	}
	fmt.Fprintln(w)
	usage.Forget(runID)
}

func stateNames(states []triage.State) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = string(s)
	}
	return strings.Join(names, " → ")
}

func argsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(raw)
}

// printTrace renders the execution trace of one run.
func printTrace(w io.Writer, trace *triage.Trace) {
	fmt.Fprintf(w, "Run %s (%s)\n", trace.RunID, trace.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Path: %s\n", stateNames(trace.States))
	for i := range trace.ToolCalls {
		call := &trace.ToolCalls[i]
		mark := "🔧"
		if call.IsError {
			mark = "⚠️ "
		}
		fmt.Fprintf(w, "  %s %s %s (%s)\n", mark, call.Name, argsJSON(call.Args), call.Duration.Round(time.Millisecond))
		fmt.Fprintf(w, "     %s\n", preview(call.Output))
	}
	for i := range trace.Reports {
		r := &trace.Reports[i]
		if r.Passed() {
			fmt.Fprintf(w, "  ✅ verification %d passed\n", r.Attempt)
			continue
		}
		failed := make([]string, 0, len(r.Results))
		for _, c := range r.Failed() {
			failed = append(failed, string(c))
		}
		fmt.Fprintf(w, "  ❌ verification %d failed: %s\n", r.Attempt, strings.Join(failed, ", "))
	}
	if trace.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", trace.Error)
	}
	if trace.Output != nil {
		printOutput(w, trace.Output)
	}
}

func printRun(w io.Writer, run *persistence.Run) {
	fmt.Fprintf(w, "Run:      %s\n", run.RunID)
	fmt.Fprintf(w, "Started:  %s (%dms)\n", run.StartedAt.Local().Format(time.DateTime), run.DurationMS)
	fmt.Fprintf(w, "Input:    %s\n", run.Input)
	fmt.Fprintf(w, "Status:   %s\n", run.Status)
	if run.Reason != "" {
		fmt.Fprintf(w, "Reason:   %s\n", run.Reason)
	}
	if run.Severity != "" {
		fmt.Fprintf(w, "Severity: %s\n", run.Severity)
	}
	if run.ActionTaken != "" {
		fmt.Fprintf(w, "Action:   %s\n", run.ActionTaken)
	}
	if run.TicketID != "" {
		fmt.Fprintf(w, "Ticket:   %s\n", run.TicketID)
	}
	if run.CreatedTicketID != "" {
		fmt.Fprintf(w, "Created:  %s\n", run.CreatedTicketID)
	}
	fmt.Fprintf(w, "Path:     %s\n", strings.Join(run.States, " → "))
	if run.Summary != "" {
		fmt.Fprintf(w, "Summary:  %s\n", run.Summary)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "Error:    %s\n", run.Error)
	}
	for i := range run.ToolCalls {
		call := &run.ToolCalls[i]
		status := "ok"
		if call.IsError {
			status = "error"
		}
		fmt.Fprintf(w, "  %d. %s %s [%s, %dms]\n", call.Seq, call.ToolName, argsJSON(call.Args), status, call.DurationMS)
		fmt.Fprintf(w, "     %s\n", preview(call.Output))
	}
}

func printRunList(w io.Writer, runs []*persistence.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-19s  %-16s  %s\n", "RUN", "STARTED", "STATUS", "SEVERITY", "ACTION", "INPUT")
	for _, r := range runs {
		action := r.ActionTaken
		if r.TicketID != "" {
			action += " " + r.TicketID
		}
		fmt.Fprintf(w, "%-36s  %-19s  %-8s  %-19s  %-16s  %s\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Status, r.Severity, action, preview(r.Input))
	}
}
