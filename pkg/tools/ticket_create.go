package tools

import (
	"context"
	"fmt"
	"strings"

	"bugtriage/pkg/signals"
	"bugtriage/pkg/tracker"
)

// DefaultPriority is used when ticket_create gets no priority.
const DefaultPriority = "P2"

//nolint:gochecknoglobals // fixed priority scale
var validPriorities = []string{"P0", "P1", "P2", "P3"}

// TicketCreator is the tracker write used by ticket_create.
type TicketCreator interface {
	Create(ctx context.Context, in tracker.NewTicket) (tracker.Ticket, error)
}

// TicketCreateTool opens a new bug in the tracker.
type TicketCreateTool struct {
	store TicketCreator
}

func NewTicketCreateTool(store TicketCreator) *TicketCreateTool {
	return &TicketCreateTool{store: store}
}

func (t *TicketCreateTool) Name() string {
	return ToolTicketCreate
}

func (t *TicketCreateTool) PromptDocumentation() string {
	return `- **ticket_create** - Create a new bug ticket
  - Parameters: summary (string, REQUIRED), description (string), priority (P0|P1|P2|P3, default P2)
  - Only call when no existing ticket covers the issue
  - Returns "Created new ticket <KEY>: <summary>" on success`
}

func (t *TicketCreateTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolTicketCreate,
		Description: "Create a new bug ticket when no existing ticket matches the issue. Never create a ticket for an issue that already has one.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"summary": {
					Type:        "string",
					Description: "One-line ticket title",
				},
				"description": {
					Type:        "string",
					Description: "Details of the problem and what the searches found",
				},
				"priority": {
					Type:        "string",
					Description: "P0 critical, P1 high, P2 medium, P3 minor",
					Enum:        validPriorities,
					Default:     DefaultPriority,
				},
			},
			Required: []string{"summary"},
		},
	}
}

func (t *TicketCreateTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	summary, err := stringArg(args, "summary")
	if err != nil {
		return nil, err
	}
	description, err := optionalStringArg(args, "description", summary)
	if err != nil {
		return nil, err
	}
	priority, err := optionalStringArg(args, "priority", DefaultPriority)
	if err != nil {
		return nil, err
	}
	priority, err = normalizePriority(priority)
	if err != nil {
		return nil, err
	}

	created, err := t.store.Create(ctx, tracker.NewTicket{
		Summary:     summary,
		Description: description,
		Priority:    priority,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket creation failed: %w", err)
	}

	return &ExecResult{
		Content: fmt.Sprintf("%s %s: %s", signals.CreationMarker, created.Key, created.Summary),
	}, nil
}

func normalizePriority(p string) (string, error) {
	up := strings.ToUpper(strings.TrimSpace(p))
	for _, v := range validPriorities {
		if up == v {
			return up, nil
		}
	}
	return "", fmt.Errorf("%w: priority must be one of %s, got %q", ErrInvalidArguments, strings.Join(validPriorities, ", "), p)
}
