// Package google is the Gemini backend of llm.LLMClient.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/tools"
)

const providerName = "google"

// GeminiClient calls generateContent on the Gemini API. The SDK client needs a context to
// build, so it is created by the first Complete.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client

	once   sync.Once
	sdk    *genai.Client
	sdkErr error
}

func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model}
}

// NewGeminiClientWithEndpoint sends requests to baseURL through httpClient.
func NewGeminiClientWithEndpoint(apiKey, model, baseURL string, httpClient *http.Client) llm.LLMClient {
	return &GeminiClient{apiKey: apiKey, model: model, baseURL: baseURL, httpClient: httpClient}
}

func (g *GeminiClient) GetModelName() string { return g.model }

func (g *GeminiClient) client(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cfg := &genai.ClientConfig{APIKey: g.apiKey, Backend: genai.BackendGeminiAPI, HTTPClient: g.httpClient}
		if g.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
		}
		g.sdk, g.sdkErr = genai.NewClient(ctx, cfg)
	})
	return g.sdk, g.sdkErr
}

//nolint:gocritic // hugeParam: interface signature
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	sdk, err := g.client(ctx)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	contents, system, err := toContents(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, err.Error())
	}

	temperature := in.Temperature
	gen := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens), //nolint:gosec // bounded by config validation
	}
	if system != "" {
		gen.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if len(in.Tools) > 0 {
		gen.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(in.Tools)}}
		gen.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: callingMode(in.ToolChoice)}}
	}

	out, err := sdk.Models.GenerateContent(ctx, g.model, contents, gen)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if out == nil || len(out.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}
	calls := out.FunctionCalls()
	return llm.CompletionResponse{
		Content:    out.Text(),
		ToolCalls:  fromFunctionCalls(calls),
		StopReason: stopReason(out.Candidates[0].FinishReason, len(calls) > 0),
	}, nil
}

func callingMode(choice string) genai.FunctionCallingConfigMode {
	switch choice {
	case "any":
		return genai.FunctionCallingConfigModeAny
	case "none":
		return genai.FunctionCallingConfigModeNone
	}
	return genai.FunctionCallingConfigModeAuto
}

// toContents maps the transcript onto Gemini turns. System messages are joined into the
// returned instruction. Gemini matches function responses by name, so a result without a
// tool name falls back to its call id.
func toContents(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", errors.New("message list cannot be empty")
	}
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role string
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
			continue
		case llm.RoleUser:
			role = string(genai.RoleUser)
		case llm.RoleAssistant:
			role = string(genai.RoleModel)
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", m.Role)
		}

		parts := make([]*genai.Part, 0, 1+len(m.ToolResults)+len(m.ToolCalls))
		for _, r := range m.ToolResults {
			name := cmpOr(r.ToolName, r.ToolCallID)
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       r.ToolCallID,
				Name:     name,
				Response: map[string]any{"content": r.Content, "is_error": r.IsError},
			}})
		}
		if m.Content != "" {
			parts = append(parts, &genai.Part{Text: m.Content})
		}
		for _, c := range m.ToolCalls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: c.ID, Name: c.Name, Args: c.Parameters}})
		}
		if len(parts) > 0 {
			contents = append(contents, &genai.Content{Role: role, Parts: parts})
		}
	}
	if len(contents) == 0 {
		return nil, "", errors.New("must have at least one non-system message")
	}
	return contents, strings.Join(system, "\n\n"), nil
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func toDeclarations(defs []tools.ToolDefinition) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(d.InputSchema.Properties)),
			Required:   d.InputSchema.Required,
		}
		for name, p := range d.InputSchema.Properties {
			params.Properties[name] = toSchema(&p)
		}
		out = append(out, &genai.FunctionDeclaration{Name: d.Name, Description: d.Description, Parameters: params})
	}
	return out
}

var schemaTypes = map[string]genai.Type{
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

func toSchema(p *tools.Property) *genai.Schema {
	s := &genai.Schema{Type: genai.TypeString, Description: p.Description}
	if t, ok := schemaTypes[p.Type]; ok {
		s.Type = t
	}
	if len(p.Enum) > 0 {
		s.Enum = p.Enum
	}
	if s.Type == genai.TypeArray && p.Items != nil {
		s.Items = toSchema(p.Items)
	}
	if s.Type == genai.TypeObject && len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for name, child := range p.Properties {
			if child != nil {
				s.Properties[name] = toSchema(child)
			}
		}
	}
	return s
}

// fromFunctionCalls converts Gemini calls. Calls without an id get name_index.
func fromFunctionCalls(calls []*genai.FunctionCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, len(calls))
	for i, c := range calls {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("%s_%d", c.Name, i)
		}
		out[i] = llm.ToolCall{ID: id, Name: c.Name, Parameters: c.Args}
	}
	return out
}

func stopReason(reason genai.FinishReason, calledTools bool) string {
	switch reason {
	case genai.FinishReasonStop, "":
		if calledTools {
			return "tool_use"
		}
		return "end_turn"
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	}
	return strings.ToLower(string(reason))
}

func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.Classify(err, apiErr.Code, providerName)
	}
	return llmerrors.Classify(err, 0, providerName)
}
