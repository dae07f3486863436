package triage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext(t *testing.T) {
	withLast := func(msgs ...Message) *WorkflowState {
		s := NewWorkflowState(3)
		s.append(msgs...)
		return s
	}
	toolCall := Message{Role: RoleDecisionMaker, ToolCalls: []ToolCall{{ID: "1", Name: "ticket_search"}}}
	reply := Message{Role: RoleDecisionMaker, Content: "done"}

	tests := []struct {
		name  string
		from  State
		state *WorkflowState
		want  State
	}{
		{"reject", StateClassify, &WorkflowState{IsValidBug: ValidityInvalid}, StateFinalize},
		{"accept", StateClassify, &WorkflowState{IsValidBug: ValidityValid}, StateSearch},
		{"search", StateSearch, NewWorkflowState(3), StateAgentTurn},
		{"tool exec", StateToolExec, NewWorkflowState(3), StateAgentTurn},
		{"act", StateAct, NewWorkflowState(3), StateAgentTurn},
		{"tools requested", StateAgentTurn, withLast(toolCall), StateToolExec},
		{"before action", StateAgentTurn, withLast(reply), StateAct},
		{"after action", StateAgentTurn, func() *WorkflowState { s := withLast(reply); s.ActionIssued = true; return s }(), StateVerify},
		{"tools after action", StateAgentTurn, func() *WorkflowState { s := withLast(toolCall); s.ActionIssued = true; return s }(), StateToolExec},
		{"retry", StateVerify, &WorkflowState{NeedsRetry: true}, StateAgentTurn},
		{"verified", StateVerify, &WorkflowState{WorkflowDone: true}, StateFinalize},
		{"finalize", StateFinalize, NewWorkflowState(3), StateDone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tt.from, tt.state)
			assert.Equal(t, tt.want, got)
			assert.True(t, IsValidTransition(tt.from, got))
		})
	}
}

func TestNextStaysInsideTransitions(t *testing.T) {
	var states []*WorkflowState
	for _, validity := range []Validity{ValidityUnknown, ValidityValid, ValidityInvalid} {
		for _, retry := range []bool{false, true} {
			for _, issued := range []bool{false, true} {
				for _, tools := range []bool{false, true} {
					s := NewWorkflowState(3)
					s.IsValidBug, s.NeedsRetry, s.ActionIssued = validity, retry, issued
					msg := Message{Role: RoleDecisionMaker, Content: "x"}
					if tools {
						msg.ToolCalls = []ToolCall{{Name: "chat_search"}}
					}
					s.append(msg)
					states = append(states, s)
				}
			}
		}
	}
	for from := range Transitions {
		for _, s := range states {
			to := Next(from, s)
			assert.True(t, IsValidTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransitionTable(t *testing.T) {
	assert.False(t, IsValidTransition(StateSearch, StateVerify))
	assert.False(t, IsValidTransition(StateDone, StateClassify))
	assert.True(t, IsValidTransition(StateVerify, StateAgentTurn))

	assert.NoError(t, ValidateState(StateDone))
	assert.NoError(t, ValidateState(StateToolExec))
	assert.Error(t, ValidateState(State("REVIEW")))
}
