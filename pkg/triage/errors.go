package triage

import (
	"errors"
	"fmt"
)

var (
	// ErrDecisionMaker wraps failures of the decision-maker call.
	ErrDecisionMaker = errors.New("decision maker failed")
	// ErrTool wraps tool failures other than bad arguments or unknown names.
	ErrTool = errors.New("tool execution failed")
	// ErrInvalidTransition means Next produced an edge outside Transitions.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// RunError is a fatal run failure. Policy failures and budget exhaustion never produce one.
type RunError struct {
	RunID string
	State State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("triage run %s failed in %s: %v", e.RunID, e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
