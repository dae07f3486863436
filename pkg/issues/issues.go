// Package issues provides code-host issue lookups for the issue_search tool: a JSON export
// on disk, or a live GitHub repository.
package issues

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"bugtriage/pkg/signals"
)

// ErrNoData means the issue export is missing or empty.
var ErrNoData = errors.New("no issue data")

// Issue is one code-host issue.
type Issue struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	State string `json:"state,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Document is the on-disk export.
type Document struct {
	Issues []Issue `json:"issues"`
}

// Source looks up issues by free-text query.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]Issue, error)
}

// FileSource searches a JSON export.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load parses the export. A missing file yields an empty document.
func (s *FileSource) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read issue export %s: %w", s.path, err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse issue export %s: %w", s.path, err)
	}
	return &doc, nil
}

// Search matches the query's search terms against issue titles.
func (s *FileSource) Search(ctx context.Context, query string, limit int) ([]Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	if len(doc.Issues) == 0 {
		return nil, ErrNoData
	}

	terms := signals.SearchTerms(query)
	var hits []Issue
	for i := range doc.Issues {
		if limit > 0 && len(hits) >= limit {
			break
		}
		if signals.MatchesAnyTerm(strings.ToLower(doc.Issues[i].Title), terms) {
			hits = append(hits, doc.Issues[i])
		}
	}
	return hits, nil
}

// Write replaces the export.
func (s *FileSource) Write(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal issue export: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write issue export: %w", err)
	}
	return nil
}
