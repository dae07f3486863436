package triage

import (
	"time"
)

// ToolInvocation records one executed tool call.
type ToolInvocation struct {
	CallID   string         `json:"call_id"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	Output   string         `json:"output"`
	IsError  bool           `json:"is_error,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Trace is the audit record of one run. It is returned even when the run fails.
type Trace struct {
	RunID      string           `json:"run_id"`
	Input      string           `json:"input"`
	Severity   Severity         `json:"severity,omitempty"`
	States     []State          `json:"states"`
	ToolCalls  []ToolInvocation `json:"tool_calls"`
	Transcript []Message        `json:"transcript"`
	Reports    []Report         `json:"reports,omitempty"`
	Output     *FinalOutput     `json:"output,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// ToolNames lists successfully executed tools in call order.
func (t *Trace) ToolNames() []string {
	names := make([]string, 0, len(t.ToolCalls))
	for i := range t.ToolCalls {
		if !t.ToolCalls[i].IsError {
			names = append(names, t.ToolCalls[i].Name)
		}
	}
	return names
}

// RequestedTools lists every tool name the decision-maker asked for, including failed calls.
func (t *Trace) RequestedTools() []string {
	var names []string
	for i := range t.Transcript {
		for _, c := range t.Transcript[i].ToolCalls {
			names = append(names, c.Name)
		}
	}
	return names
}

// ResponseText is the observable transcript text.
func (t *Trace) ResponseText() string {
	return observableText(t.Transcript)
}

// Status returns the final status, or "" when the run produced no output.
func (t *Trace) Status() string {
	if t.Output == nil {
		return ""
	}
	return t.Output.Status
}

// Duration is the wall time of the run.
func (t *Trace) Duration() time.Duration {
	return t.FinishedAt.Sub(t.StartedAt)
}
