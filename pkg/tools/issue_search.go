package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bugtriage/pkg/issues"
)

const issueSearchLimit = 5

// IssueSearchTool searches code-host issues through an issues.Source.
type IssueSearchTool struct {
	source issues.Source
}

func NewIssueSearchTool(source issues.Source) *IssueSearchTool {
	return &IssueSearchTool{source: source}
}

func (t *IssueSearchTool) Name() string {
	return ToolIssueSearch
}

func (t *IssueSearchTool) PromptDocumentation() string {
	return `- **issue_search** - Search code-host issues by title
  - Parameters: query (string, REQUIRED)
  - Returns up to 5 issues as "[number] title"`
}

func (t *IssueSearchTool) Definition() ToolDefinition {
	return queryDefinition(ToolIssueSearch,
		"Search the code repository's issue tracker for issues related to the reported problem.",
		"dashboard glitch")
}

func (t *IssueSearchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	hits, err := t.source.Search(ctx, query, issueSearchLimit)
	if errors.Is(err, issues.ErrNoData) {
		return &ExecResult{Content: "No issue data available."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("issue search failed: %w", err)
	}
	if len(hits) == 0 {
		return &ExecResult{Content: "No matching issues found."}, nil
	}

	lines := make([]string, 0, len(hits))
	for _, is := range hits {
		line := fmt.Sprintf("[%d] %s", is.ID, is.Title)
		if is.State != "" {
			line += " (" + is.State + ")"
		}
		if is.URL != "" {
			line += " " + is.URL
		}
		lines = append(lines, line)
	}
	return &ExecResult{Content: strings.Join(lines, "\n")}, nil
}
