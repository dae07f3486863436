// Package chatlog reads team-chat threads exported as JSON for the chat_search tool.
package chatlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"bugtriage/pkg/signals"
)

// ErrNoData means the export is missing or holds no threads.
var ErrNoData = errors.New("no chat data")

// Post is a single chat message.
type Post struct {
	User string `json:"user"`
	Text string `json:"text"`
	TS   string `json:"ts"`
}

// Thread is a conversation in a channel.
type Thread struct {
	Channel string `json:"channel"`
	Thread  []Post `json:"thread"`
}

// Document is the on-disk export.
type Document struct {
	Channels []string `json:"channels"`
	Messages []Thread `json:"messages"`
}

// Store searches a chat export file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load parses the export. A missing file yields an empty document.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat export %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse chat export %s: %w", s.path, err)
	}
	return &doc, nil
}

// Search returns up to limit threads whose combined text contains any search term of query.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(doc.Messages) == 0 {
		return nil, ErrNoData
	}

	terms := signals.SearchTerms(query)
	var hits []Thread
	for i := range doc.Messages {
		if limit > 0 && len(hits) >= limit {
			break
		}
		if signals.MatchesAnyTerm(threadText(&doc.Messages[i]), terms) {
			hits = append(hits, doc.Messages[i])
		}
	}
	return hits, nil
}

// Write replaces the export. Used by fixture seeding.
func (s *Store) Write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal chat export: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write chat export: %w", err)
	}
	return nil
}

func threadText(t *Thread) string {
	parts := make([]string, 0, len(t.Thread))
	for _, p := range t.Thread {
		parts = append(parts, p.Text)
	}
	return strings.ToLower(strings.Join(parts, " "))
}
