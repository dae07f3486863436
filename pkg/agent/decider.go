package agent

import (
	"context"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/logx"
	"bugtriage/pkg/tools"
	"bugtriage/pkg/triage"
	"bugtriage/pkg/utils"
)

// DefaultToolOutputTokens bounds each tool result sent back to the model.
const DefaultToolOutputTokens = 1500

// Decider adapts an llm.LLMClient to triage.DecisionMaker. It is stateless between calls.
type Decider struct {
	client           llm.LLMClient
	tools            []tools.ToolDefinition
	maxTokens        int
	temperature      float32
	toolOutputTokens int
	logger           *logx.Logger
}

// DeciderOption configures a Decider.
type DeciderOption func(*Decider)

// WithMaxTokens sets the completion budget per call.
func WithMaxTokens(n int) DeciderOption {
	return func(d *Decider) {
		if n > 0 {
			d.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float32) DeciderOption {
	return func(d *Decider) { d.temperature = temp }
}

// WithToolOutputTokens bounds tool results; zero or negative disables truncation.
func WithToolOutputTokens(n int) DeciderOption {
	return func(d *Decider) { d.toolOutputTokens = n }
}

// NewDecider creates a decision-maker that offers defs to client on every turn.
func NewDecider(client llm.LLMClient, defs []tools.ToolDefinition, opts ...DeciderOption) *Decider {
	d := &Decider{
		client:           client,
		tools:            defs,
		maxTokens:        llm.DefaultMaxTokens,
		temperature:      llm.TemperatureDeterministic,
		toolOutputTokens: DefaultToolOutputTokens,
		logger:           logx.NewLogger("decider"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decide implements triage.DecisionMaker.
func (d *Decider) Decide(ctx context.Context, transcript []triage.Message) (triage.Message, error) {
	req := llm.NewCompletionRequest(ToCompletionMessages(transcript, d.toolOutputTokens))
	req.Tools = d.tools
	req.MaxTokens = d.maxTokens
	req.Temperature = d.temperature

	resp, err := d.client.Complete(ctx, req)
	if err != nil {
		return triage.Message{}, err
	}
	logx.Debug(ctx, "decider", "%s replied: %d chars, %d tool calls, stop=%s",
		d.client.GetModelName(), len(resp.Content), len(resp.ToolCalls), resp.StopReason)
	return FromCompletionResponse(resp), nil
}

// ToCompletionMessages maps a triage transcript onto provider-neutral messages.
// Directives travel as user turns; adjacent tool results share one user turn.
// Tool output longer than toolOutputTokens is truncated when the limit is positive.
func ToCompletionMessages(transcript []triage.Message, toolOutputTokens int) []llm.CompletionMessage {
	out := make([]llm.CompletionMessage, 0, len(transcript))
	for i := range transcript {
		m := &transcript[i]
		switch m.Role {
		case triage.RoleSystem:
			out = append(out, llm.NewSystemMessage(m.Content))
		case triage.RoleDecisionMaker:
			msg := llm.CompletionMessage{Role: llm.RoleAssistant, Content: m.Content}
			for _, c := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: c.ID, Name: c.Name, Parameters: c.Args})
			}
			out = append(out, msg)
		case triage.RoleToolResult:
			content := m.Content
			if toolOutputTokens > 0 {
				content = utils.TruncateTokensSimple(content, toolOutputTokens)
			}
			res := llm.ToolResult{ToolCallID: m.ToolCallID, ToolName: m.ToolName, Content: content, IsError: m.IsError}
			if n := len(out); n > 0 && out[n-1].Role == llm.RoleUser && len(out[n-1].ToolResults) > 0 && out[n-1].Content == "" {
				out[n-1].ToolResults = append(out[n-1].ToolResults, res)
				continue
			}
			out = append(out, llm.CompletionMessage{Role: llm.RoleUser, ToolResults: []llm.ToolResult{res}})
		default:
			out = append(out, llm.NewUserMessage(m.Content))
		}
	}
	return out
}

// FromCompletionResponse converts a model reply into a decision-maker message.
//
//nolint:gocritic // value receiver mirrors the client interface
func FromCompletionResponse(resp llm.CompletionResponse) triage.Message {
	msg := triage.Message{Role: triage.RoleDecisionMaker, Content: resp.Content}
	for _, c := range resp.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, triage.ToolCall{ID: c.ID, Name: c.Name, Args: c.Parameters})
	}
	return msg
}
