// Package triage implements the issue-triage control loop: a keyword classifier, directive
// steps that steer an external decision-maker, a duplicate detector, a policy verifier with a
// bounded retry budget and a finalizer, composed by an explicit state machine.
package triage

import (
	"errors"
	"strings"
)

// Role identifies who authored a transcript message.
type Role string

const (
	RoleSystem        Role = "system"
	RoleUser          Role = "user"
	RoleDecisionMaker Role = "decision_maker"
	RoleToolResult    Role = "tool_result"
	// RoleDirective marks control-loop instructions. Providers send them as user turns.
	RoleDirective Role = "directive"
)

// ToolCall is a tool invocation requested by the decision-maker.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one immutable transcript entry.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
}

// HasToolCalls reports whether the message requests tool execution.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Observable reports whether the message is evidence of the decision-maker's behavior:
// its own replies and the tool results it caused. Prompts and directives are not.
func (m *Message) Observable() bool {
	return m.Role == RoleDecisionMaker || m.Role == RoleToolResult
}

// Severity is the classifier verdict. The zero value means not yet classified.
type Severity string

const (
	SeverityUnset              Severity = ""
	SeverityTrivial            Severity = "trivial"
	SeverityMinor              Severity = "minor"
	SeverityMedium             Severity = "medium"
	SeverityHigh               Severity = "high"
	SeverityCritical           Severity = "critical"
	SeverityNeedsInvestigation Severity = "needs_investigation"
	SeverityNotABug            Severity = "not_a_bug"
)

// Priority maps a severity to the ticket priority code. Unmapped severities get P2.
func (s Severity) Priority() string {
	switch s {
	case SeverityCritical:
		return "P0"
	case SeverityHigh:
		return "P1"
	case SeverityMinor:
		return "P3"
	default:
		return "P2"
	}
}

// Validity is a tri-state bug verdict.
type Validity int

const (
	ValidityUnknown Validity = iota
	ValidityValid
	ValidityInvalid
)

func (v Validity) String() string {
	switch v {
	case ValidityValid:
		return "valid"
	case ValidityInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Run statuses.
const (
	StatusComplete   = "complete"
	StatusIncomplete = "incomplete"
	StatusRejected   = "rejected"
)

// Actions reported in FinalOutput.ActionTaken.
const (
	ActionCreatedNewTicket = "created_new_ticket"
	ActionFoundDuplicate   = "found_duplicate"
	ActionNone             = "none"
)

// RejectReason is the reason recorded for off-topic input.
const RejectReason = "Off-topic query, not a bug report"

// FinalOutput is the structured result of one run.
type FinalOutput struct {
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Severity Severity `json:"severity,omitempty"`
	TicketID string   `json:"ticket_id,omitempty"`
	// CreatedTicketID is the key returned by ticket_create, when it ran.
	CreatedTicketID string   `json:"created_ticket_id,omitempty"`
	ActionTaken     string   `json:"action_taken"`
	ToolsUsed       []string `json:"tools_used"`
	Summary         string   `json:"summary,omitempty"`
	StepsTaken      int      `json:"steps_taken"`
	Retries         int      `json:"retries"`
}

var (
	errVerdictSet   = errors.New("classification already recorded")
	errDuplicateSet = errors.New("duplicate already recorded")
	errOutputSet    = errors.New("final output already recorded")
)

// WorkflowState is the record threaded through every node of one run.
// The transcript is append-only and only the driver appends to it.
type WorkflowState struct {
	transcript  []Message
	invocations []ToolInvocation

	RetryCount int
	MaxRetries int
	StepCount  int

	IsValidBug Validity
	Severity   Severity

	DuplicateFound    bool
	DuplicateTicketID string

	WorkflowDone bool
	NeedsRetry   bool
	Verified     bool
	ActionIssued bool

	FinalOutput *FinalOutput
}

// NewWorkflowState returns an empty state with the given retry budget.
func NewWorkflowState(maxRetries int) *WorkflowState {
	return &WorkflowState{MaxRetries: maxRetries}
}

// Transcript returns a copy of the messages so far.
func (s *WorkflowState) Transcript() []Message {
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Last returns the most recent message.
func (s *WorkflowState) Last() (Message, bool) {
	if len(s.transcript) == 0 {
		return Message{}, false
	}
	return s.transcript[len(s.transcript)-1], true
}

// FirstUserText returns the first user-authored message.
func (s *WorkflowState) FirstUserText() string {
	for i := range s.transcript {
		if s.transcript[i].Role == RoleUser {
			return s.transcript[i].Content
		}
	}
	return ""
}

// ObservableText joins the content of observable messages in transcript order.
func (s *WorkflowState) ObservableText() string {
	return observableText(s.transcript)
}

// DecisionText joins the decision-maker's replies in transcript order.
func (s *WorkflowState) DecisionText() string {
	parts := make([]string, 0, len(s.transcript))
	for i := range s.transcript {
		if s.transcript[i].Role == RoleDecisionMaker && s.transcript[i].Content != "" {
			parts = append(parts, s.transcript[i].Content)
		}
	}
	return strings.Join(parts, " ")
}

// Invocations returns the tool invocation log.
func (s *WorkflowState) Invocations() []ToolInvocation {
	out := make([]ToolInvocation, len(s.invocations))
	copy(out, s.invocations)
	return out
}

// InvokedTools returns the names of tools that executed successfully, in call order.
func (s *WorkflowState) InvokedTools() []string {
	names := make([]string, 0, len(s.invocations))
	for i := range s.invocations {
		if !s.invocations[i].IsError {
			names = append(names, s.invocations[i].Name)
		}
	}
	return names
}

func (s *WorkflowState) append(msgs ...Message) {
	s.transcript = append(s.transcript, msgs...)
}

func (s *WorkflowState) recordInvocation(inv ToolInvocation) {
	s.invocations = append(s.invocations, inv)
}

func (s *WorkflowState) setVerdict(v Verdict) error {
	if s.IsValidBug != ValidityUnknown || s.Severity != SeverityUnset {
		return errVerdictSet
	}
	s.IsValidBug = v.Validity
	s.Severity = v.Severity
	return nil
}

func (s *WorkflowState) setDuplicate(key string) error {
	if s.DuplicateFound {
		return errDuplicateSet
	}
	s.DuplicateFound = true
	s.DuplicateTicketID = key
	return nil
}

func (s *WorkflowState) setFinalOutput(out *FinalOutput) error {
	if s.FinalOutput != nil {
		return errOutputSet
	}
	s.FinalOutput = out
	return nil
}

func observableText(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for i := range msgs {
		if msgs[i].Observable() && msgs[i].Content != "" {
			parts = append(parts, msgs[i].Content)
		}
	}
	return strings.Join(parts, " ")
}
