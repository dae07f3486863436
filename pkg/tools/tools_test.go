package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/pkg/chatlog"
	"bugtriage/pkg/issues"
	"bugtriage/pkg/signals"
	"bugtriage/pkg/tracker"
)

type fixture struct {
	tickets *tracker.Store
	chat    *chatlog.Store
	issues  *issues.FileSource
	catalog *Catalog
}

func newFixture(t *testing.T, seed bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		tickets: tracker.NewStore(filepath.Join(dir, "tickets.json"), "CSE"),
		chat:    chatlog.NewStore(filepath.Join(dir, "chat.json")),
		issues:  issues.NewFileSource(filepath.Join(dir, "issues.json")),
	}
	if seed {
		require.NoError(t, f.tickets.Replace(&tracker.Document{Tickets: []tracker.Ticket{
			{Key: "CSE-1", Summary: "Login failure on production", Description: "Cannot login after update", Status: "Open", Priority: "P0", Type: "Bug", Labels: []string{"backend"}},
			{Key: "CSE-2", Summary: "Minor dashboard UI glitch", Description: "Misaligned buttons", Status: "Open", Priority: "P1", Type: "Bug", Labels: []string{"frontend"}},
		}}))
		require.NoError(t, f.chat.Write(&chatlog.Document{
			Channels: []string{"#bugs"},
			Messages: []chatlog.Thread{
				{Channel: "#bugs", Thread: []chatlog.Post{{User: "alice", Text: "Login failure reported by client X", TS: "2026-01-25T12:00:00"}}},
			},
		}))
		require.NoError(t, f.issues.Write(&issues.Document{Issues: []issues.Issue{
			{ID: 101, Title: "Login failure on production"},
			{ID: 102, Title: "Minor dashboard UI glitch"},
		}}))
	}
	var err error
	f.catalog, err = NewTriageCatalog(time.Second, f.tickets, f.chat, f.issues)
	require.NoError(t, err)
	return f
}

func TestCatalogRegistration(t *testing.T) {
	f := newFixture(t, false)
	assert.Equal(t, []string{ToolTicketSearch, ToolChatSearch, ToolIssueSearch, ToolTicketCreate}, f.catalog.Names())

	defs := f.catalog.Definitions()
	require.Len(t, defs, 4)
	for _, d := range defs {
		assert.Equal(t, "object", d.InputSchema.Type, d.Name)
		assert.NotEmpty(t, d.Description, d.Name)
	}
	assert.Equal(t, []string{"summary"}, defs[3].InputSchema.Required)
	assert.Equal(t, DefaultPriority, defs[3].InputSchema.Properties["priority"].Default)

	doc := f.catalog.PromptDocumentation()
	for _, name := range f.catalog.Names() {
		assert.Contains(t, doc, "**"+name+"**")
	}

	_, err := NewCatalog(0, NewTicketSearchTool(f.tickets), NewTicketSearchTool(f.tickets))
	assert.Error(t, err, "duplicate names are rejected")
}

func TestCatalogUnknownTool(t *testing.T) {
	f := newFixture(t, true)
	_, err := f.catalog.Exec(context.Background(), "web_search", map[string]any{"query": "x"})
	assert.ErrorIs(t, err, ErrUnknownTool)
}

func TestSearchToolsWithoutData(t *testing.T) {
	f := newFixture(t, false)
	tests := map[string]string{
		ToolTicketSearch: "No ticket data available.",
		ToolChatSearch:   "No chat data available.",
		ToolIssueSearch:  "No issue data available.",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := f.catalog.Exec(context.Background(), name, map[string]any{"query": "login failure"})
			require.NoError(t, err)
			assert.Equal(t, want, res.Content)
		})
	}
}

func TestSearchToolsNoMatch(t *testing.T) {
	f := newFixture(t, true)
	tests := map[string]string{
		ToolTicketSearch: "No matching tickets found.",
		ToolChatSearch:   "No matching chat conversations found.",
		ToolIssueSearch:  "No matching issues found.",
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			res, err := f.catalog.Exec(context.Background(), name, map[string]any{"query": "quantum entanglement"})
			require.NoError(t, err)
			assert.Equal(t, want, res.Content)
		})
	}
}

func TestTicketSearchFormat(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.catalog.Exec(context.Background(), ToolTicketSearch, map[string]any{"query": "login failure"})
	require.NoError(t, err)
	assert.Equal(t, "[CSE-1] [P0] [Open]\nType: Bug\nSummary: Login failure on production\nAssignee: Unassigned\nLabels: backend", res.Content)
}

func TestChatSearchFormat(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.catalog.Exec(context.Background(), ToolChatSearch, map[string]any{"query": "login"})
	require.NoError(t, err)
	assert.Equal(t, "#bugs\n"+strings.Repeat("-", 40)+"\nalice (2026-01-25T12:00:00):\nLogin failure reported by client X\n", res.Content)
}

func TestIssueSearchFormat(t *testing.T) {
	f := newFixture(t, true)
	res, err := f.catalog.Exec(context.Background(), ToolIssueSearch, map[string]any{"query": "dashboard"})
	require.NoError(t, err)
	assert.Equal(t, "[102] Minor dashboard UI glitch", res.Content)
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newFixture(t, true)
	for _, args := range []map[string]any{{}, {"query": ""}, {"query": 42}} {
		_, err := f.catalog.Exec(context.Background(), ToolTicketSearch, args)
		assert.ErrorIs(t, err, ErrInvalidArguments)
	}
}

func TestTicketCreate(t *testing.T) {
	f := newFixture(t, true)

	res, err := f.catalog.Exec(context.Background(), ToolTicketCreate, map[string]any{
		"summary":  "Memory leak in API gateway",
		"priority": "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Created new ticket CSE-3: Memory leak in API gateway", res.Content)
	assert.True(t, signals.HasCreationMarker(res.Content))

	got, ok, err := f.tickets.Get("CSE-3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Memory leak in API gateway", got.Description, "description defaults to summary")
	assert.Equal(t, "P1", got.Priority)
}

func TestTicketCreateDefaultsPriority(t *testing.T) {
	f := newFixture(t, false)
	res, err := f.catalog.Exec(context.Background(), ToolTicketCreate, map[string]any{
		"summary":     "Checkout button misaligned",
		"description": "Shifted 4px on Safari",
	})
	require.NoError(t, err)
	assert.Equal(t, "Created new ticket CSE-1: Checkout button misaligned", res.Content)

	got, ok, err := f.tickets.Get("CSE-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, DefaultPriority, got.Priority)
}

func TestTicketCreateInvalidArguments(t *testing.T) {
	f := newFixture(t, true)
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing summary", map[string]any{"priority": "P1"}},
		{"bad priority", map[string]any{"summary": "x", "priority": "urgent"}},
		{"non-string description", map[string]any{"summary": "x", "description": 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.catalog.Exec(context.Background(), ToolTicketCreate, tt.args)
			assert.ErrorIs(t, err, ErrInvalidArguments)
		})
	}

	doc, err := f.tickets.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Tickets, 2, "rejected calls must not write")
}

type slowSearcher struct{}

func (slowSearcher) Search(ctx context.Context, _ string, _ int) ([]tracker.Ticket, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type brokenSource struct{}

func (brokenSource) Search(context.Context, string, int) ([]issues.Issue, error) {
	return nil, errors.New("connection refused")
}

func TestCatalogTimeout(t *testing.T) {
	c, err := NewCatalog(20*time.Millisecond, NewTicketSearchTool(slowSearcher{}))
	require.NoError(t, err)

	_, err = c.Exec(context.Background(), ToolTicketSearch, map[string]any{"query": "login"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
}

func TestBackendFailurePropagates(t *testing.T) {
	c, err := NewCatalog(0, NewIssueSearchTool(brokenSource{}))
	require.NoError(t, err)

	_, err = c.Exec(context.Background(), ToolIssueSearch, map[string]any{"query": "login"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidArguments)
	assert.Contains(t, err.Error(), "connection refused")
}
