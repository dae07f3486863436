package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bugtriage/pkg/triage"
)

// ErrScriptExhausted is returned when a ScriptedDecider runs out of steps.
var ErrScriptExhausted = errors.New("scripted decider: no steps left")

// Step produces one Decision-Maker reply from the transcript it was shown.
type Step func(transcript []triage.Message) (triage.Message, error)

// Say replies with plain text and no tool calls.
func Say(content string) Step {
	return func([]triage.Message) (triage.Message, error) {
		return triage.Message{Role: triage.RoleDecisionMaker, Content: content}, nil
	}
}

// CallTools requests the given tool calls.
func CallTools(calls ...triage.ToolCall) Step {
	return func([]triage.Message) (triage.Message, error) {
		out := make([]triage.ToolCall, len(calls))
		copy(out, calls)
		return triage.Message{Role: triage.RoleDecisionMaker, ToolCalls: out}, nil
	}
}

// Fail makes the Decision-Maker call itself fail.
func Fail(err error) Step {
	return func([]triage.Message) (triage.Message, error) {
		return triage.Message{}, err
	}
}

// Search builds a query tool call.
func Search(tool, query string) triage.ToolCall {
	return triage.ToolCall{Name: tool, Args: map[string]any{"query": query}}
}

// Create builds a ticket_create call.
func Create(summary, priority string) triage.ToolCall {
	args := map[string]any{"summary": summary}
	if priority != "" {
		args["priority"] = priority
	}
	return triage.ToolCall{Name: "ticket_create", Args: args}
}

// ScriptedDecider replays its steps in order, one per Decide call.
type ScriptedDecider struct {
	steps []Step

	mu    sync.Mutex
	next  int
	calls [][]triage.Message
}

// NewScriptedDecider creates a decider over steps.
func NewScriptedDecider(steps ...Step) *ScriptedDecider {
	return &ScriptedDecider{steps: steps}
}

// Decide implements triage.DecisionMaker.
func (d *ScriptedDecider) Decide(_ context.Context, transcript []triage.Message) (triage.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, transcript)
	if d.next >= len(d.steps) {
		return triage.Message{}, fmt.Errorf("%w (call %d)", ErrScriptExhausted, d.next+1)
	}
	step := d.steps[d.next]
	d.next++
	return step(transcript)
}

// CallCount returns the number of Decide calls.
func (d *ScriptedDecider) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// Seen returns the transcript passed to the nth call (0-indexed).
func (d *ScriptedDecider) Seen(n int) []triage.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n < 0 || n >= len(d.calls) {
		return nil
	}
	return d.calls[n]
}

// Remaining returns the number of unused steps.
func (d *ScriptedDecider) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.steps) - d.next
}
