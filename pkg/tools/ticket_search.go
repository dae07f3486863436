package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bugtriage/pkg/tracker"
)

const ticketSearchLimit = 5

// TicketSearcher is the tracker lookup used by ticket_search.
type TicketSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]tracker.Ticket, error)
}

// TicketSearchTool searches the ticket tracker.
type TicketSearchTool struct {
	store TicketSearcher
}

func NewTicketSearchTool(store TicketSearcher) *TicketSearchTool {
	return &TicketSearchTool{store: store}
}

func (t *TicketSearchTool) Name() string {
	return ToolTicketSearch
}

func (t *TicketSearchTool) PromptDocumentation() string {
	return `- **ticket_search** - Search the ticket tracker for existing tickets
  - Parameters: query (string, REQUIRED)
  - Matches words of four or more letters against summary, description, status, priority, type and labels
  - Returns up to 5 tickets with key, priority, status, summary, assignee and labels`
}

func (t *TicketSearchTool) Definition() ToolDefinition {
	return queryDefinition(ToolTicketSearch,
		"Search the ticket tracker for tickets related to the reported issue. Always call this before deciding whether to create a ticket.",
		"login failure production")
}

func (t *TicketSearchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	hits, err := t.store.Search(ctx, query, ticketSearchLimit)
	if errors.Is(err, tracker.ErrNoData) {
		return &ExecResult{Content: "No ticket data available."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ticket search failed: %w", err)
	}
	if len(hits) == 0 {
		return &ExecResult{Content: "No matching tickets found."}, nil
	}

	blocks := make([]string, 0, len(hits))
	for i := range hits {
		blocks = append(blocks, formatTicket(&hits[i]))
	}
	return &ExecResult{Content: strings.Join(blocks, "\n\n")}, nil
}

func formatTicket(tk *tracker.Ticket) string {
	assignee := tk.Assignee
	if assignee == "" {
		assignee = "Unassigned"
	}
	labels := strings.Join(tk.Labels, ", ")
	if labels == "" {
		labels = "None"
	}
	return fmt.Sprintf("[%s] [%s] [%s]\nType: %s\nSummary: %s\nAssignee: %s\nLabels: %s",
		tk.Key, orDefault(tk.Priority, "N/A"), orDefault(tk.Status, "Unknown"),
		orDefault(tk.Type, "Ticket"), orDefault(tk.Summary, "No summary"), assignee, labels)
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
