package persistence

import (
	"errors"
	"time"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// ErrSessionNotFound is returned when a session ID has no record.
var ErrSessionNotFound = errors.New("session not found")

// Run is the stored summary of one triage run.
//
//nolint:govet // field order mirrors the runs table
type Run struct {
	RunID           string     `json:"run_id"`
	SessionID       string     `json:"session_id,omitempty"`
	Input           string     `json:"input"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	Severity        string     `json:"severity,omitempty"`
	ActionTaken     string     `json:"action_taken,omitempty"`
	TicketID        string     `json:"ticket_id,omitempty"`
	CreatedTicketID string     `json:"created_ticket_id,omitempty"`
	Summary         string     `json:"summary,omitempty"`
	ToolsUsed       []string   `json:"tools_used"`
	States          []string   `json:"states"`
	StepsTaken      int        `json:"steps_taken"`
	Retries         int        `json:"retries"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      time.Time  `json:"finished_at"`
	DurationMS      int64      `json:"duration_ms"`
	ToolCalls       []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is one executed tool call belonging to a run.
type ToolCall struct {
	Seq        int            `json:"seq"`
	CallID     string         `json:"call_id,omitempty"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
	Output     string         `json:"output,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// RunFilter narrows ListRuns. Zero values match everything; Limit <= 0 means DefaultListLimit.
type RunFilter struct {
	Status    string
	Severity  string
	SessionID string
	Limit     int
}

// DefaultListLimit caps ListRuns when no limit is given.
const DefaultListLimit = 20

// StatusCount is one row of the per-status run tally.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// Session status constants.
const (
	SessionStatusActive   = "active"
	SessionStatusShutdown = "shutdown"
	SessionStatusCrashed  = "crashed"
)

// Session is one process lifetime that recorded runs (a CLI invocation or a server).
type Session struct {
	SessionID string     `json:"session_id"`
	Command   string     `json:"command"`
	Model     string     `json:"model"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
