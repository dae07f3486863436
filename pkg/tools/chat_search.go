package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bugtriage/pkg/chatlog"
)

const chatSearchLimit = 3

// ChatSearcher is the chat-archive lookup used by chat_search.
type ChatSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]chatlog.Thread, error)
}

// ChatSearchTool searches team chat threads.
type ChatSearchTool struct {
	source ChatSearcher
}

func NewChatSearchTool(source ChatSearcher) *ChatSearchTool {
	return &ChatSearchTool{source: source}
}

func (t *ChatSearchTool) Name() string {
	return ToolChatSearch
}

func (t *ChatSearchTool) PromptDocumentation() string {
	return `- **chat_search** - Search team chat for discussions of the issue
  - Parameters: query (string, REQUIRED)
  - Returns up to 3 matching threads with channel, author, timestamp and text`
}

func (t *ChatSearchTool) Definition() ToolDefinition {
	return queryDefinition(ToolChatSearch,
		"Search team chat channels and threads for discussions related to the reported issue.",
		"login failure client")
}

func (t *ChatSearchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	threads, err := t.source.Search(ctx, query, chatSearchLimit)
	if errors.Is(err, chatlog.ErrNoData) {
		return &ExecResult{Content: "No chat data available."}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat search failed: %w", err)
	}
	if len(threads) == 0 {
		return &ExecResult{Content: "No matching chat conversations found."}, nil
	}

	blocks := make([]string, 0, len(threads))
	for i := range threads {
		blocks = append(blocks, formatThread(&threads[i]))
	}
	return &ExecResult{Content: strings.Join(blocks, "\n\n")}, nil
}

func formatThread(th *chatlog.Thread) string {
	lines := []string{"#" + strings.TrimPrefix(th.Channel, "#") + "\n" + strings.Repeat("-", 40)}
	for _, p := range th.Thread {
		lines = append(lines, fmt.Sprintf("%s (%s):\n%s\n", orDefault(p.User, "Unknown"), p.TS, p.Text))
	}
	return strings.Join(lines, "\n")
}
