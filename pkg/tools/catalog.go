package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bugtriage/pkg/chatlog"
	"bugtriage/pkg/issues"
	"bugtriage/pkg/logx"
	"bugtriage/pkg/tracker"
)

// Catalog holds the tools available to one orchestrator, in registration order.
// It is read-only after construction and safe for concurrent use.
type Catalog struct {
	tools   map[string]Tool
	order   []string
	timeout time.Duration
	logger  *logx.Logger
}

// NewCatalog registers tools. Each Exec is bounded by timeout when it is positive.
func NewCatalog(timeout time.Duration, list ...Tool) (*Catalog, error) {
	c := &Catalog{
		tools:   make(map[string]Tool, len(list)),
		timeout: timeout,
		logger:  logx.NewLogger("tools"),
	}
	for _, t := range list {
		if t == nil {
			return nil, fmt.Errorf("tool cannot be nil")
		}
		name := t.Name()
		if name == "" {
			return nil, fmt.Errorf("tool name cannot be empty")
		}
		if _, exists := c.tools[name]; exists {
			return nil, fmt.Errorf("tool %s already registered", name)
		}
		c.tools[name] = t
		c.order = append(c.order, name)
	}
	return c, nil
}

// NewTriageCatalog builds the four triage tools over the given backends.
func NewTriageCatalog(timeout time.Duration, tickets *tracker.Store, chat *chatlog.Store, src issues.Source) (*Catalog, error) {
	return NewCatalog(timeout,
		NewTicketSearchTool(tickets),
		NewChatSearchTool(chat),
		NewIssueSearchTool(src),
		NewTicketCreateTool(tickets),
	)
}

// Names returns tool names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Get returns the named tool.
func (c *Catalog) Get(name string) (Tool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Definitions returns every tool definition in registration order.
func (c *Catalog) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.tools[name].Definition())
	}
	return defs
}

// PromptDocumentation joins the tools' prompt entries.
func (c *Catalog) PromptDocumentation() string {
	docs := make([]string, 0, len(c.order))
	for _, name := range c.order {
		docs = append(docs, c.tools[name].PromptDocumentation())
	}
	return strings.Join(docs, "\n")
}

// Exec runs the named tool under the per-call timeout.
func (c *Catalog) Exec(ctx context.Context, name string, args map[string]any) (*ExecResult, error) {
	t, ok := c.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := t.Exec(ctx, args)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("tool %s timed out after %s: %w", name, c.timeout, err)
		}
		c.logger.Debug("%s failed after %s: %v", name, elapsed.Round(time.Millisecond), err)
		return nil, err
	}
	c.logger.Debug("%s completed in %s (%d bytes)", name, elapsed.Round(time.Millisecond), len(res.Content))
	return res, nil
}
