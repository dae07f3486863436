package mocks

import (
	"context"
	"fmt"
	"sync"

	"bugtriage/pkg/agent/llm"
)

// CompleteHandler answers one Complete call.
type CompleteHandler func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

// MockLLMClient is an llm.LLMClient whose replies are set by the test. Every request is
// recorded so tests can inspect what the code under test sent.
type MockLLMClient struct {
	mu      sync.Mutex
	model   string
	handler CompleteHandler
	calls   []llm.CompletionRequest
}

// NewMockLLMClient returns a client named "mock-model" that answers every call with a
// fixed end_turn reply.
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{model: "mock-model"}
	m.RespondWith("Mock response")
	return m
}

// Complete records req and delegates to the configured handler.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	h := m.handler
	m.mu.Unlock()
	return h(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.model
}

// SetModelName changes the reported model name.
func (m *MockLLMClient) SetModelName(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.model = name
}

// OnComplete installs a custom handler.
func (m *MockLLMClient) OnComplete(h CompleteHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

// FailCompleteWith makes every call fail with err.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// RespondWith makes every call return content as a final answer.
func (m *MockLLMClient) RespondWith(content string) {
	m.respond(llm.CompletionResponse{Content: content, StopReason: "end_turn"})
}

// RespondWithToolCall makes every call request one tool.
func (m *MockLLMClient) RespondWithToolCall(toolName string, params map[string]any) {
	m.respond(llm.CompletionResponse{
		ToolCalls:  []llm.ToolCall{{ID: "mock-tool-call-1", Name: toolName, Parameters: params}},
		StopReason: "tool_use",
	})
}

func (m *MockLLMClient) respond(resp llm.CompletionResponse) {
	m.OnComplete(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return resp, nil
	})
}

// RespondWithSequence returns responses in order, repeating the last one once exhausted.
func (m *MockLLMClient) RespondWithSequence(responses []llm.CompletionResponse) {
	var next int
	var seqMu sync.Mutex
	m.OnComplete(func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		seqMu.Lock()
		defer seqMu.Unlock()
		resp := responses[min(next, len(responses)-1)]
		next++
		return resp, nil
	})
}

// SearchThenSummarize requests every named search tool with query on the first call and
// answers with summary afterwards.
func (m *MockLLMClient) SearchThenSummarize(query, summary string, toolNames ...string) {
	calls := make([]llm.ToolCall, len(toolNames))
	for i, name := range toolNames {
		calls[i] = llm.ToolCall{
			ID:         fmt.Sprintf("mock-call-%d", i+1),
			Name:       name,
			Parameters: map[string]any{"query": query},
		}
	}
	m.RespondWithSequence([]llm.CompletionResponse{
		{ToolCalls: calls, StopReason: "tool_use"},
		{Content: summary, StopReason: "end_turn"},
	})
}

// GetCompleteCallCount is the number of recorded calls.
func (m *MockLLMClient) GetCompleteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// GetNthCompleteCall returns call n (0-indexed) or nil.
func (m *MockLLMClient) GetNthCompleteCall(n int) *llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n < 0 || n >= len(m.calls) {
		return nil
	}
	req := m.calls[n]
	return &req
}

// LastCompleteCall returns the most recent call or nil.
func (m *MockLLMClient) LastCompleteCall() *llm.CompletionRequest {
	return m.GetNthCompleteCall(m.GetCompleteCallCount() - 1)
}

// LastCompleteCallMessages returns the messages of the most recent call.
func (m *MockLLMClient) LastCompleteCallMessages() []llm.CompletionMessage {
	if req := m.LastCompleteCall(); req != nil {
		return req.Messages
	}
	return nil
}

// ToolResultsInCall collects the tool results carried by call n (0-indexed).
func (m *MockLLMClient) ToolResultsInCall(n int) []llm.ToolResult {
	req := m.GetNthCompleteCall(n)
	if req == nil {
		return nil
	}
	var out []llm.ToolResult
	for _, msg := range req.Messages {
		out = append(out, msg.ToolResults...)
	}
	return out
}
