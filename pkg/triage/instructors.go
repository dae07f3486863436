package triage

import (
	"fmt"
	"strings"

	"bugtriage/pkg/tools"
)

// DefaultSystemPrompt seeds every run.
const DefaultSystemPrompt = `You are a bug triage assistant.

When investigating an issue:
1. Search the ticket tracker (ticket_search), team chat (chat_search) and code-host issues (issue_search) for related information, even if the tracker already returns results.
2. If a relevant existing ticket is found, clearly state "Found existing ticket <KEY>" and do not create a new ticket.
3. If no relevant ticket exists but the issue is valid, create one with ticket_create.
4. For critical (P0) issues, use the words "critical", "urgent" or "P0" in your summary.
5. Finish with a short summary of your findings.

Never create a ticket for an issue that already has one.`

// SearchDirective steers the first decision-maker turn.
func SearchDirective(sev Severity) Message {
	if sev == SeverityTrivial {
		return directive(fmt.Sprintf(
			"This is a trivial cosmetic issue. Search ONLY the ticket tracker with %s for existing tickets. "+
				"If a duplicate is found, reference it. If not, do NOT create a ticket. "+
				"Summarize it as a 'low priority' or 'minor' issue.",
			tools.ToolTicketSearch))
	}
	return directive(fmt.Sprintf(
		"Search the ticket tracker, team chat AND code-host issues for related reports. Call %s, %s and %s.",
		tools.ToolTicketSearch, tools.ToolChatSearch, tools.ToolIssueSearch))
}

// ActionDirective steers the decision-maker after the searches, by priority: duplicate,
// trivial, needs investigation, then ticket creation at the severity's priority.
func ActionDirective(s *WorkflowState) Message {
	switch {
	case s.DuplicateFound:
		return directive(fmt.Sprintf(
			"Found existing ticket %s. Reference it and summarize your findings. Do NOT create a new ticket.",
			s.DuplicateTicketID))
	case s.Severity == SeverityTrivial:
		return directive("This is a trivial cosmetic issue. Do NOT create a ticket. " +
			"Summarize it as a 'low priority' or 'minor' issue.")
	case s.Severity == SeverityNeedsInvestigation:
		return directive("This needs investigation. If an existing ticket was found, reference it. " +
			"If it is clearly a bug with no duplicate, you may create a ticket. " +
			"Otherwise summarize your findings without creating a ticket.")
	}

	priority := s.Severity.Priority()
	if s.Severity == SeverityCritical {
		return directive(fmt.Sprintf(
			"No duplicate found. Use %s to create a new ticket with priority='%s'. "+
				"This is CRITICAL: include 'critical', 'urgent' or 'P0' in your summary. Then summarize.",
			tools.ToolTicketCreate, priority))
	}
	return directive(fmt.Sprintf(
		"No duplicate found. Use %s to create a new ticket with priority='%s', then summarize.",
		tools.ToolTicketCreate, priority))
}

// RetryDirective tells the decision-maker which checks the last attempt failed.
func RetryDirective(report *Report, sev Severity) Message {
	failed := report.Failed()
	hints := make([]string, 0, len(failed))
	for _, c := range failed {
		hints = append(hints, "- "+checkHint(c, sev))
	}
	return directive(fmt.Sprintf(
		"Verification failed (attempt %d). Address the following before finishing:\n%s",
		report.Attempt, strings.Join(hints, "\n")))
}

func checkHint(c Check, sev Severity) string {
	switch c {
	case CheckTicketSearched:
		return "Call " + tools.ToolTicketSearch + "."
	case CheckChatSearched:
		return "Call " + tools.ToolChatSearch + "."
	case CheckIssueSearched:
		return "Call " + tools.ToolIssueSearch + "."
	case CheckTicketAction:
		if sev == SeverityTrivial {
			return "State that this is a 'low priority' or 'minor' issue."
		}
		return "Either create a ticket with " + tools.ToolTicketCreate + " or state which existing ticket covers the issue."
	case CheckSummary:
		return "Write a summary of your findings."
	case CheckSeverityContent:
		if sev == SeverityTrivial {
			return "Do not create tickets for trivial issues."
		}
		return "Include 'critical', 'urgent' or 'P0' in your summary."
	default:
		return string(c)
	}
}

func directive(content string) Message {
	return Message{Role: RoleDirective, Content: content}
}
