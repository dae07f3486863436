package mocks

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"bugtriage/pkg/signals"
	"bugtriage/pkg/tools"
	"bugtriage/pkg/triage"
)

var priorityRe = regexp.MustCompile(`priority='(P[0-3])'`)

// PolicyDecider is a deterministic Decision-Maker that does what the latest directive asks:
// it calls the search tools a directive names, creates a ticket when told to, and otherwise
// writes a summary built from the tool results. It is stateless and safe for concurrent use.
type PolicyDecider struct {
	matcher *signals.Matcher
}

// NewPolicyDecider creates a decider for the given ticket key prefix.
func NewPolicyDecider(prefix string) *PolicyDecider {
	return &PolicyDecider{matcher: signals.NewMatcher(prefix)}
}

// Decide implements triage.DecisionMaker.
func (p *PolicyDecider) Decide(_ context.Context, transcript []triage.Message) (triage.Message, error) {
	if len(transcript) == 0 {
		return triage.Message{}, fmt.Errorf("policy decider: empty transcript")
	}
	last := transcript[len(transcript)-1]
	query := firstUser(transcript)

	if last.Role == triage.RoleDirective {
		if calls := p.callsFor(last.Content, query, transcript); len(calls) > 0 {
			return triage.Message{Role: triage.RoleDecisionMaker, ToolCalls: calls}, nil
		}
	}
	return triage.Message{Role: triage.RoleDecisionMaker, Content: p.summarize(transcript, query)}, nil
}

func (p *PolicyDecider) callsFor(directive, query string, transcript []triage.Message) []triage.ToolCall {
	if m := priorityRe.FindStringSubmatch(directive); m != nil && !strings.Contains(directive, "Do NOT create") {
		return []triage.ToolCall{Create(query, m[1])}
	}
	var calls []triage.ToolCall
	for _, name := range []string{tools.ToolTicketSearch, tools.ToolChatSearch, tools.ToolIssueSearch} {
		if strings.Contains(directive, name) && !called(transcript, name) {
			calls = append(calls, Search(name, query))
		}
	}
	return calls
}

func (p *PolicyDecider) summarize(transcript []triage.Message, query string) string {
	directive := lastDirective(transcript)
	var parts []string

	if created, ok := p.createdKey(transcript); ok {
		parts = append(parts, fmt.Sprintf("I created ticket %s for %q.", created, query))
	} else if key, ok := p.trackerHit(transcript); ok && !strings.Contains(directive, "Do NOT create a ticket") {
		parts = append(parts, fmt.Sprintf("Found existing ticket %s that already covers %q.", key, query))
	} else {
		parts = append(parts, fmt.Sprintf("No existing ticket covers %q.", query))
	}

	lower := strings.ToLower(directive)
	switch {
	case strings.Contains(lower, "critical"):
		parts = append(parts, "This is a critical P0 incident and needs urgent attention.")
	case strings.Contains(lower, "low priority"):
		parts = append(parts, "This is a minor, low priority cosmetic issue.")
	}
	parts = append(parts, "Summary of findings from the searched sources is above.")
	return strings.Join(parts, " ")
}

// trackerHit returns the first key in a ticket_search result.
func (p *PolicyDecider) trackerHit(transcript []triage.Message) (string, bool) {
	for i := range transcript {
		m := &transcript[i]
		if m.Role == triage.RoleToolResult && m.ToolName == tools.ToolTicketSearch && !m.IsError {
			if key, ok := p.matcher.FirstTicketKey(m.Content); ok {
				return key, true
			}
		}
	}
	return "", false
}

func (p *PolicyDecider) createdKey(transcript []triage.Message) (string, bool) {
	for i := range transcript {
		m := &transcript[i]
		if m.Role == triage.RoleToolResult && signals.HasCreationMarker(m.Content) {
			return p.matcher.FirstTicketKey(m.Content)
		}
	}
	return "", false
}

func firstUser(transcript []triage.Message) string {
	for i := range transcript {
		if transcript[i].Role == triage.RoleUser {
			return transcript[i].Content
		}
	}
	return ""
}

func lastDirective(transcript []triage.Message) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == triage.RoleDirective {
			return transcript[i].Content
		}
	}
	return ""
}

func called(transcript []triage.Message, name string) bool {
	for i := range transcript {
		if transcript[i].Role == triage.RoleToolResult && transcript[i].ToolName == name && !transcript[i].IsError {
			return true
		}
	}
	return false
}
