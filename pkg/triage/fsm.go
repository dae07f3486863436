package triage

import "fmt"

// State is a node of the triage control loop.
type State string

// State constants - single source of truth for state names.
const (
	StateClassify  State = "CLASSIFY"
	StateSearch    State = "SEARCH"
	StateAgentTurn State = "AGENT_TURN"
	StateToolExec  State = "TOOL_EXEC"
	StateAct       State = "ACT"
	StateVerify    State = "VERIFY"
	StateFinalize  State = "FINALIZE"
	StateDone      State = "DONE"
)

// Transitions is the canonical transition map. Next never leaves it.
//
//nolint:gochecknoglobals // canonical FSM table
var Transitions = map[State][]State{
	// CLASSIFY rejects off-topic input straight to FINALIZE
	StateClassify: {StateSearch, StateFinalize},

	StateSearch: {StateAgentTurn},

	// AGENT_TURN runs requested tools, or hands over to ACT before the action directive and to VERIFY after it
	StateAgentTurn: {StateToolExec, StateAct, StateVerify},

	StateToolExec: {StateAgentTurn},
	StateAct:      {StateAgentTurn},

	// VERIFY loops back for a retry while budget remains
	StateVerify: {StateAgentTurn, StateFinalize},

	StateFinalize: {StateDone},
}

// Next is the pure routing function: given the node just executed and the state it left
// behind, it returns the node to run next.
func Next(from State, s *WorkflowState) State {
	switch from {
	case StateClassify:
		if s.IsValidBug == ValidityInvalid {
			return StateFinalize
		}
		return StateSearch
	case StateSearch, StateToolExec, StateAct:
		return StateAgentTurn
	case StateAgentTurn:
		if last, ok := s.Last(); ok && last.Role == RoleDecisionMaker && last.HasToolCalls() {
			return StateToolExec
		}
		if s.ActionIssued {
			return StateVerify
		}
		return StateAct
	case StateVerify:
		if s.NeedsRetry {
			return StateAgentTurn
		}
		return StateFinalize
	default:
		return StateDone
	}
}

// IsValidTransition checks a transition against Transitions.
func IsValidTransition(from, to State) bool {
	for _, allowed := range Transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateState checks that state is a known node.
func ValidateState(state State) error {
	if state == StateDone {
		return nil
	}
	if _, ok := Transitions[state]; !ok {
		return fmt.Errorf("invalid triage state: %s", state)
	}
	return nil
}
