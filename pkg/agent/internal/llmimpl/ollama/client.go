// Package ollama is the llm.LLMClient backend for a local Ollama server.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/tools"
)

const (
	providerName = "ollama"
	defaultHost  = "http://localhost:11434"
)

// Client sends non-streaming /api/chat requests.
type Client struct {
	chat  *api.Client
	model string
	host  string
}

// NewOllamaClientWithModel talks to hostURL, or to the local default when hostURL does
// not parse as an absolute URL.
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	return NewOllamaClientWithHTTP(hostURL, model, http.DefaultClient)
}

func NewOllamaClientWithHTTP(hostURL, model string, httpClient *http.Client) llm.LLMClient {
	u, err := url.Parse(hostURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		u, _ = url.Parse(defaultHost)
	}
	return &Client{chat: api.NewClient(u, httpClient), model: model, host: u.String()}
}

func (c *Client) GetModelName() string { return c.model }

//nolint:gocritic // hugeParam: interface signature
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	messages, err := toMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, err.Error())
	}

	streaming := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &streaming,
		Options:  map[string]any{"temperature": in.Temperature, "num_predict": in.MaxTokens},
	}
	if len(in.Tools) > 0 && in.ToolChoice != "none" {
		if req.Tools, err = toTools(in.Tools); err != nil {
			return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, err.Error())
		}
	}

	var last api.ChatResponse
	if err := c.chat.Chat(ctx, req, func(r api.ChatResponse) error {
		last = r
		return nil
	}); err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	calls, err := fromToolCalls(last.Message.ToolCalls)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "malformed tool call arguments")
	}
	if last.Message.Content == "" && len(calls) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama returned neither content nor tool calls")
	}
	return llm.CompletionResponse{
		Content:    last.Message.Content,
		ToolCalls:  calls,
		StopReason: stopReason(&last),
	}, nil
}

// viaJSON copies src into dst through its JSON form. The SDK's argument and tool types
// change shape between releases; their JSON does not.
func viaJSON(src, dst any) error {
	raw, err := json.Marshal(src)
	if err != nil {
		return err //nolint:wrapcheck // callers add context
	}
	return json.Unmarshal(raw, dst) //nolint:wrapcheck // callers add context
}

// toMessages emits each tool result as its own "tool" message ahead of the text it
// travelled with.
func toMessages(messages []llm.CompletionMessage) ([]api.Message, error) {
	if len(messages) == 0 {
		return nil, errors.New("message list cannot be empty")
	}
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		for _, r := range m.ToolResults {
			out = append(out, api.Message{Role: "tool", Content: r.Content, ToolCallID: r.ToolCallID})
		}
		if len(m.ToolResults) > 0 && m.Content == "" {
			continue
		}

		msg := api.Message{Role: string(m.Role), Content: m.Content}
		for _, call := range m.ToolCalls {
			params := call.Parameters
			if params == nil {
				params = map[string]any{}
			}
			var args api.ToolCallFunctionArguments
			if err := viaJSON(params, &args); err != nil {
				return nil, fmt.Errorf("tool call %s: %w", call.Name, err)
			}
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID:       call.ID,
				Function: api.ToolCallFunction{Name: call.Name, Arguments: args},
			})
		}
		out = append(out, msg)
	}
	return out, nil
}

func jsonSchema(p *tools.Property) map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Items != nil {
		s["items"] = jsonSchema(p.Items)
	}
	if len(p.Properties) > 0 {
		children := make(map[string]any, len(p.Properties))
		for name, child := range p.Properties {
			if child != nil {
				children[name] = jsonSchema(child)
			}
		}
		s["properties"] = children
	}
	return s
}

func toTools(defs []tools.ToolDefinition) (api.Tools, error) {
	out := make(api.Tools, len(defs))
	for i, d := range defs {
		props := make(map[string]any, len(d.InputSchema.Properties))
		for name, p := range d.InputSchema.Properties {
			props[name] = jsonSchema(&p)
		}
		objType := d.InputSchema.Type
		if objType == "" {
			objType = "object"
		}
		fn := map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"parameters":  map[string]any{"type": objType, "properties": props, "required": d.InputSchema.Required},
		}
		if err := viaJSON(map[string]any{"type": "function", "function": fn}, &out[i]); err != nil {
			return nil, fmt.Errorf("tool %s: %w", d.Name, err)
		}
	}
	return out, nil
}

// fromToolCalls converts returned calls. Ollama does not always assign ids, so missing
// ones become call_<index>.
func fromToolCalls(calls []api.ToolCall) ([]llm.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, call := range calls {
		var params map[string]any
		if err := viaJSON(call.Function.Arguments, &params); err != nil {
			return nil, fmt.Errorf("tool call %s: %w", call.Function.Name, err)
		}
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out[i] = llm.ToolCall{ID: id, Name: call.Function.Name, Parameters: params}
	}
	return out, nil
}

func stopReason(r *api.ChatResponse) string {
	switch {
	case !r.Done:
		return "incomplete"
	case r.DoneReason == "" || r.DoneReason == "stop":
		return "end_turn"
	case r.DoneReason == "length":
		return "max_tokens"
	}
	return r.DoneReason
}

// classifyError maps server failures onto llmerrors. A 404 means the model is not pulled,
// which no retry fixes.
func classifyError(err error) error {
	var se api.StatusError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found: "+se.ErrorMessage)
	case errors.As(err, &se):
		return llmerrors.Classify(err, se.StatusCode, providerName)
	}
	return llmerrors.Classify(err, 0, providerName)
}
