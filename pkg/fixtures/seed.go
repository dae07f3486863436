// Package fixtures seeds the local record sources with a small demo data set.
package fixtures

import (
	"fmt"
	"os"

	"bugtriage/pkg/chatlog"
	"bugtriage/pkg/config"
	"bugtriage/pkg/issues"
	"bugtriage/pkg/logx"
	"bugtriage/pkg/tracker"
)

// Tickets returns the demo tracker document.
func Tickets() *tracker.Document {
	return &tracker.Document{Tickets: []tracker.Ticket{
		{Key: "CSE-1", Summary: "Login failure on production", Description: "Cannot login after update", Status: "Open", Priority: "P0", Type: "Bug", Labels: []string{"backend"}},
		{Key: "CSE-2", Summary: "Minor dashboard UI glitch", Description: "Misaligned buttons", Status: "Open", Priority: "P1", Type: "Bug", Labels: []string{"frontend"}},
	}}
}

// Chat returns the demo chat export.
func Chat() *chatlog.Document {
	return &chatlog.Document{
		Channels: []string{"#bugs"},
		Messages: []chatlog.Thread{
			{Channel: "#bugs", Thread: []chatlog.Post{{User: "alice", Text: "Login failure reported by client X", TS: "2026-01-25T12:00:00"}}},
			{Channel: "#bugs", Thread: []chatlog.Post{{User: "bob", Text: "Minor dashboard UI glitch", TS: "2026-01-25T12:05:00"}}},
		},
	}
}

// Issues returns the demo code-host issues.
func Issues() *issues.Document {
	return &issues.Document{Issues: []issues.Issue{
		{ID: 101, Title: "Login failure on production"},
		{ID: 102, Title: "Minor dashboard UI glitch"},
	}}
}

// Seed overwrites the three data files named by cfg with the demo data.
func Seed(cfg *config.DataConfig, ticketPrefix string) error {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", cfg.Dir, err)
	}

	if err := tracker.NewStore(cfg.TicketsPath(), ticketPrefix).Replace(Tickets()); err != nil {
		return fmt.Errorf("failed to seed tickets: %w", err)
	}
	if err := chatlog.NewStore(cfg.ChatPath()).Write(Chat()); err != nil {
		return fmt.Errorf("failed to seed chat: %w", err)
	}
	if err := issues.NewFileSource(cfg.IssuesPath()).Write(Issues()); err != nil {
		return fmt.Errorf("failed to seed issues: %w", err)
	}

	logx.Infof("Seeded %d tickets, %d chat threads and %d issues in %s",
		len(Tickets().Tickets), len(Chat().Messages), len(Issues().Issues), cfg.Dir)
	return nil
}
