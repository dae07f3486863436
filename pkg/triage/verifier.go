package triage

import (
	"slices"
	"strings"

	"bugtriage/pkg/signals"
	"bugtriage/pkg/tools"
)

// MinSummaryLength is the observable text length a run must exceed.
const MinSummaryLength = 50

// Check names one verification predicate.
type Check string

const (
	CheckTicketSearched  Check = "ticket_searched"
	CheckChatSearched    Check = "chat_searched"
	CheckIssueSearched   Check = "issue_searched"
	CheckTicketAction    Check = "ticket_action"
	CheckSummary         Check = "summary_present"
	CheckSeverityContent Check = "severity_content"
)

// AllChecks lists the checks in evaluation order.
//
//nolint:gochecknoglobals // fixed check order
var AllChecks = []Check{
	CheckTicketSearched, CheckChatSearched, CheckIssueSearched,
	CheckTicketAction, CheckSummary, CheckSeverityContent,
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Check  Check `json:"check"`
	Passed bool  `json:"passed"`
}

// Report is one verifier visit.
type Report struct {
	// Attempt is 1 for the first verification.
	Attempt int           `json:"attempt"`
	Results []CheckResult `json:"results"`
}

// Passed reports whether every check held.
func (r *Report) Passed() bool {
	for _, c := range r.Results {
		if !c.Passed {
			return false
		}
	}
	return true
}

// Failed returns the failing checks in evaluation order.
func (r *Report) Failed() []Check {
	var out []Check
	for _, c := range r.Results {
		if !c.Passed {
			out = append(out, c.Check)
		}
	}
	return out
}

// Evidence is what the verifier may look at.
type Evidence struct {
	Severity Severity
	// Text is the observable transcript text.
	Text string
	// DecisionText is the decision-maker's own prose, without tool output.
	DecisionText string
	// Invoked lists successfully executed tools.
	Invoked []string
}

// Verify evaluates the six policy checks. It does not touch workflow state.
func Verify(m *signals.Matcher, ev Evidence, attempt int) Report {
	lower := strings.ToLower(ev.Text)
	trivial := ev.Severity == SeverityTrivial
	invoked := func(name string) bool { return slices.Contains(ev.Invoked, name) }
	created := invoked(tools.ToolTicketCreate)

	ticketAction := created ||
		m.ReferencesExisting(ev.Text) ||
		(trivial && (strings.Contains(lower, "low priority") || strings.Contains(lower, "minor")))

	content := true
	switch ev.Severity {
	case SeverityCritical:
		content = signals.ContainsAny(strings.ToLower(ev.DecisionText), "p0", "critical", "urgent")
	case SeverityTrivial:
		content = !created
	}

	return Report{
		Attempt: attempt,
		Results: []CheckResult{
			{CheckTicketSearched, invoked(tools.ToolTicketSearch)},
			{CheckChatSearched, trivial || invoked(tools.ToolChatSearch)},
			{CheckIssueSearched, trivial || invoked(tools.ToolIssueSearch)},
			{CheckTicketAction, ticketAction},
			{CheckSummary, len(ev.Text) > MinSummaryLength},
			{CheckSeverityContent, content},
		},
	}
}

// applyVerification advances the retry budget from a report and returns the messages to
// append: a retry directive when another attempt is allowed, nothing otherwise.
func applyVerification(s *WorkflowState, r *Report) []Message {
	switch {
	case r.Passed():
		s.WorkflowDone, s.NeedsRetry, s.Verified = true, false, true
		return nil
	case s.RetryCount < s.MaxRetries:
		s.NeedsRetry = true
		s.RetryCount++
		return []Message{RetryDirective(r, s.Severity)}
	default:
		s.WorkflowDone, s.NeedsRetry = true, false
		return nil
	}
}
