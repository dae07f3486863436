package openaiofficial

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/tools"
)

func TestModelNames(t *testing.T) {
	if got := NewOfficialClient("test-api-key").GetModelName(); got != "gpt-4o" {
		t.Errorf("default model = %q, want gpt-4o", got)
	}
	if got := NewOfficialClientWithModel("test-key", "o4-mini").GetModelName(); got != "o4-mini" {
		t.Errorf("model = %q, want o4-mini", got)
	}
}

func TestPropertySchemaForTicketCreate(t *testing.T) {
	priority := convertPropertyToSchema(&tools.Property{Type: "string", Description: "P0-P3", Enum: []string{"P0", "P1", "P2", "P3"}})
	if priority["type"] != "string" || priority["description"] != "P0-P3" {
		t.Errorf("unexpected priority schema: %v", priority)
	}
	if enum, ok := priority["enum"].([]string); !ok || len(enum) != 4 {
		t.Errorf("enum lost: %v", priority["enum"])
	}

	labels := convertPropertyToSchema(&tools.Property{Type: "array", Items: &tools.Property{Type: "string"}})
	items, ok := labels["items"].(map[string]any)
	if !ok || items["type"] != "string" {
		t.Errorf("array items lost: %v", labels)
	}
}

func TestConvertMessagesPlacesToolResults(t *testing.T) {
	msgs, err := convertMessages([]llm.CompletionMessage{
		{Role: llm.RoleSystem, Content: "triage"},
		{Role: llm.RoleUser, Content: "Login broken"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "ticket_search", Parameters: map[string]any{"query": "login"}}}},
		{Role: llm.RoleUser, Content: "Summarize.", ToolResults: []llm.ToolResult{{ToolCallID: "c1", Content: "CSE-1"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	if msgs[2].OfAssistant == nil || len(msgs[2].OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected assistant tool call, got %+v", msgs[2])
	}
	if msgs[3].OfTool == nil || msgs[3].OfTool.ToolCallID != "c1" {
		t.Fatalf("expected tool message for c1, got %+v", msgs[3])
	}
	if msgs[4].OfUser == nil {
		t.Fatalf("expected trailing user message")
	}
}

func TestConvertMessagesRejectsUnknownRole(t *testing.T) {
	if _, err := convertMessages([]llm.CompletionMessage{{Role: "tool"}}); err == nil {
		t.Fatal("expected error")
	}
}

func chatServer(t *testing.T, status int, body string, seen *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteToolCalls(t *testing.T) {
	var seen map[string]any
	srv := chatServer(t, http.StatusOK, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {"role": "assistant", "content": null,
			"tool_calls": [{"id": "call_a", "type": "function", "function": {"name": "ticket_create", "arguments": "{\"summary\":\"Export leak\",\"priority\":\"P1\"}"}}]}}]
	}`, &seen)
	client := NewOfficialClientWithModel("k", "gpt-4o", option.WithBaseURL(srv.URL))

	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Memory leak in the export API")})
	req.Tools = []tools.ToolDefinition{{Name: "ticket_create", InputSchema: tools.InputSchema{Properties: map[string]tools.Property{"summary": {Type: "string"}}}}}

	resp, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StopReason != "tool_use" {
		t.Errorf("expected tool_use, got %q", resp.StopReason)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Parameters["priority"] != "P1" {
		t.Fatalf("unexpected tool calls: %+v", resp.ToolCalls)
	}
	if seen["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", seen["tool_choice"])
	}
}

func TestCompleteClassifiesErrors(t *testing.T) {
	srv := chatServer(t, http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`, nil)
	client := NewOfficialClientWithModel("k", "gpt-4o", option.WithBaseURL(srv.URL))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	if got := llmerrors.TypeOf(err); got != llmerrors.ErrorTypeAuth {
		t.Fatalf("expected auth error, got %s (%v)", got, err)
	}
}

func TestStopReason(t *testing.T) {
	for in, want := range map[string]string{"stop": "end_turn", "length": "max_tokens", "tool_calls": "tool_use", "content_filter": "content_filter"} {
		if got := stopReason(in); got != want {
			t.Errorf("stopReason(%q) = %q, want %q", in, got, want)
		}
	}
}
