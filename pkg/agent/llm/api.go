// Package llm is the provider-neutral completion API the Decision-Maker talks to.
// Provider clients under internal/llmimpl translate it to their SDKs.
package llm

import (
	"context"

	"bugtriage/pkg/tools"
)

// CompletionRole is who authored a message.
type CompletionRole string

const (
	RoleSystem    CompletionRole = "system"
	RoleUser      CompletionRole = "user"
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens is the output budget when a request leaves MaxTokens at zero.
	DefaultMaxTokens = 2048

	// TemperatureDeterministic is the sampling temperature for triage turns.
	TemperatureDeterministic = 0.2
)

// ToolCall is one tool the model asked for.
type ToolCall struct {
	Parameters map[string]any `json:"parameters"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// ToolResult answers a ToolCall by ID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// CompletionMessage is one turn. Only assistant turns carry ToolCalls and only user
// turns carry ToolResults.
type CompletionMessage struct {
	Role        CompletionRole
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

//nolint:govet // fieldalignment
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	ToolChoice  string // "auto" when empty, "any" or "none"
	MaxTokens   int
	Temperature float32
}

//nolint:govet // fieldalignment
type CompletionResponse struct {
	ToolCalls  []ToolCall
	Content    string
	StopReason string // end_turn, tool_use, max_tokens
}

// LLMClient is implemented by every provider client and every middleware.
type LLMClient interface { //nolint:revive // stutter
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
	GetModelName() string
}

// NewCompletionRequest builds a request with the triage defaults for budget and temperature.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{Messages: messages, MaxTokens: DefaultMaxTokens, Temperature: TemperatureDeterministic}
}

func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}
