package triage

import (
	"context"
	"time"
)

// StateEvent is emitted before each node runs.
type StateEvent struct {
	RunID    string    `json:"run_id"`
	State    State     `json:"state"`
	Step     int       `json:"step"`
	Retry    int       `json:"retry"`
	Severity Severity  `json:"severity,omitempty"`
	At       time.Time `json:"at"`
}

// Observer receives run progress. Implementations must not block for long; they run
// inline with the control loop.
type Observer interface {
	OnState(ctx context.Context, ev StateEvent)
	OnToolCall(ctx context.Context, runID string, inv ToolInvocation)
	// OnFinish is called once per run with the final trace and the fatal error, if any.
	OnFinish(ctx context.Context, trace *Trace, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) OnState(context.Context, StateEvent)                {}
func (NopObserver) OnToolCall(context.Context, string, ToolInvocation) {}
func (NopObserver) OnFinish(context.Context, *Trace, error)            {}

// Observers fans events out in order.
type Observers []Observer

func (o Observers) OnState(ctx context.Context, ev StateEvent) {
	for _, ob := range o {
		ob.OnState(ctx, ev)
	}
}

func (o Observers) OnToolCall(ctx context.Context, runID string, inv ToolInvocation) {
	for _, ob := range o {
		ob.OnToolCall(ctx, runID, inv)
	}
}

func (o Observers) OnFinish(ctx context.Context, trace *Trace, err error) {
	for _, ob := range o {
		ob.OnFinish(ctx, trace, err)
	}
}
