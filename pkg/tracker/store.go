// Package tracker is the JSON-file ticket tracker searched and written by the triage tools.
//
// The whole tracker is one JSON document. Reads parse it fresh; writes are serialized by a
// mutex, re-read the document under the lock and replace the file through a temp file and
// rename, so a reader never observes a partially written document.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"bugtriage/pkg/signals"
)

// Ticket statuses and the default type for new tickets.
const (
	StatusOpen = "Open"
	TypeBug    = "Bug"
)

// ErrNoData means the tracker file is missing or holds no tickets.
var ErrNoData = errors.New("no ticket data")

// Ticket is one tracker entry.
type Ticket struct {
	Key         string   `json:"key"`
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	Type        string   `json:"type"`
	Assignee    string   `json:"assignee,omitempty"`
	Labels      []string `json:"labels"`
	Component   string   `json:"component,omitempty"`
	Team        string   `json:"team,omitempty"`
	Client      string   `json:"client,omitempty"`
}

// Document is the on-disk layout.
type Document struct {
	Tickets []Ticket `json:"tickets"`
}

// NewTicket carries the caller-supplied fields of a ticket to create.
type NewTicket struct {
	Summary     string
	Description string
	Priority    string
}

// Store reads and writes the tracker document at path.
type Store struct {
	path   string
	prefix string
	mu     sync.Mutex
}

// NewStore returns a store for the document at path issuing keys with prefix.
func NewStore(path, prefix string) *Store {
	return &Store{path: path, prefix: strings.ToUpper(prefix)}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Load parses the document. A missing file yields an empty document.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read tracker %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse tracker %s: %w", s.path, err)
	}
	return &doc, nil
}

// Search returns up to limit tickets where any search term of query occurs in the summary,
// description, status, priority, type or labels.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(doc.Tickets) == 0 {
		return nil, ErrNoData
	}

	terms := signals.SearchTerms(query)
	var hits []Ticket
	for i := range doc.Tickets {
		if limit > 0 && len(hits) >= limit {
			break
		}
		if signals.MatchesAnyTerm(haystack(&doc.Tickets[i]), terms) {
			hits = append(hits, doc.Tickets[i])
		}
	}
	return hits, nil
}

// Get returns the ticket with key.
func (s *Store) Get(key string) (Ticket, bool, error) {
	doc, err := s.Load()
	if err != nil {
		return Ticket{}, false, err
	}
	for i := range doc.Tickets {
		if strings.EqualFold(doc.Tickets[i].Key, key) {
			return doc.Tickets[i], true, nil
		}
	}
	return Ticket{}, false, nil
}

// Create appends a new open bug and persists the document. Keys are <prefix>-<max+1>.
func (s *Store) Create(ctx context.Context, in NewTicket) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Ticket{}, err
	}
	doc, err := s.Load()
	if err != nil {
		return Ticket{}, err
	}

	t := Ticket{
		Key:         fmt.Sprintf("%s-%d", s.prefix, s.nextNumber(doc)),
		Summary:     in.Summary,
		Description: in.Description,
		Status:      StatusOpen,
		Priority:    in.Priority,
		Type:        TypeBug,
		Labels:      []string{},
	}
	doc.Tickets = append(doc.Tickets, t)

	if err := s.write(doc); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

// Replace overwrites the whole document. Used by fixture seeding.
func (s *Store) Replace(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(doc)
}

func (s *Store) nextNumber(doc *Document) int {
	highest := 0
	want := s.prefix + "-"
	for i := range doc.Tickets {
		key := strings.ToUpper(doc.Tickets[i].Key)
		if !strings.HasPrefix(key, want) {
			continue
		}
		if n, err := strconv.Atoi(key[len(want):]); err == nil && n > highest {
			highest = n
		}
	}
	if len(doc.Tickets) > highest {
		highest = len(doc.Tickets)
	}
	return highest + 1
}

// write replaces the document via temp file, fsync and rename in the same directory.
func (s *Store) write(doc *Document) error {
	if doc.Tickets == nil {
		doc.Tickets = []Ticket{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tracker: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tracker directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tickets-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write tracker: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync tracker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to set tracker permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace tracker: %w", err)
	}
	return nil
}

func haystack(t *Ticket) string {
	return strings.ToLower(strings.Join([]string{
		t.Summary, t.Description, t.Status, t.Priority, t.Type, strings.Join(t.Labels, " "),
	}, " "))
}
