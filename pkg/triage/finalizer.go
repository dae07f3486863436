package triage

import (
	"bugtriage/pkg/signals"
)

// MinSummaryCandidateLength is the length a message must exceed to serve as the summary.
const MinSummaryCandidateLength = 20

// Finalize reduces a finished run to its result record.
func Finalize(m *signals.Matcher, s *WorkflowState, summaryMaxLen int) *FinalOutput {
	out := &FinalOutput{
		Status:      StatusIncomplete,
		Severity:    s.Severity,
		ActionTaken: ActionNone,
		ToolsUsed:   s.InvokedTools(),
		StepsTaken:  s.StepCount,
		Retries:     s.RetryCount,
	}
	if s.Verified {
		out.Status = StatusComplete
	}

	transcript := s.transcript
	for i := range transcript {
		if !transcript[i].Observable() {
			continue
		}
		if key, ok := m.FirstTicketKey(transcript[i].Content); ok {
			out.TicketID = key
			break
		}
	}

	_, referenced := DetectDuplicate(m, transcript)
	created, ok := createdTicket(m, transcript)
	switch {
	case ok:
		out.ActionTaken = ActionCreatedNewTicket
		out.CreatedTicketID = created
	case s.DuplicateFound || referenced:
		out.ActionTaken = ActionFoundDuplicate
	}

	for i := len(transcript) - 1; i >= 0; i-- {
		msg := &transcript[i]
		if msg.Observable() && len(msg.Content) > MinSummaryCandidateLength {
			out.Summary = truncateRunes(msg.Content, summaryMaxLen)
			break
		}
	}
	return out
}

// rejectedOutput is the abbreviated record for off-topic input.
func rejectedOutput(s *WorkflowState) *FinalOutput {
	return &FinalOutput{
		Status:      StatusRejected,
		Reason:      RejectReason,
		Severity:    s.Severity,
		ActionTaken: ActionNone,
		ToolsUsed:   []string{},
		StepsTaken:  s.StepCount,
		Retries:     s.RetryCount,
	}
}

// createdTicket returns the key from the first successful creation result.
func createdTicket(m *signals.Matcher, transcript []Message) (string, bool) {
	for i := range transcript {
		msg := &transcript[i]
		if msg.Role == RoleToolResult && !msg.IsError && signals.HasCreationMarker(msg.Content) {
			key, _ := m.FirstTicketKey(msg.Content)
			return key, true
		}
	}
	return "", false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
