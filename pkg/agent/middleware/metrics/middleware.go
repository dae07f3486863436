package metrics

import (
	"context"
	"time"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/logx"
	"bugtriage/pkg/utils"
)

// UsageExtractor returns the prompt and completion token counts of one call.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor counts tokens with tiktoken over message text, tool results and
// tool-call arguments.
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	parts := make([]string, 0, len(req.Messages))
	for i := range req.Messages {
		parts = append(parts, req.Messages[i].Content)
		for _, tr := range req.Messages[i].ToolResults {
			parts = append(parts, tr.Content)
		}
	}
	promptTokens = utils.CountAll(parts...)

	completion := []string{resp.Content}
	for _, tc := range resp.ToolCalls {
		completion = append(completion, tc.Name)
		for _, v := range tc.Parameters {
			if s, ok := v.(string); ok {
				completion = append(completion, s)
			}
		}
	}
	completionTokens = utils.CountAll(completion...)
	return promptTokens, completionTokens
}

// Middleware times each call, counts its tokens with usage and reports the result to
// recorder. The run id comes from the request context.
func Middleware(recorder Recorder, usage UsageExtractor, logger *logx.Logger) llm.Middleware {
	if usage == nil {
		usage = DefaultUsageExtractor
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)

				o := Observation{
					Model:    next.GetModelName(),
					RunID:    logx.RunIDFrom(ctx),
					Duration: time.Since(start),
				}
				if err != nil {
					o.ErrorType = llmerrors.TypeOf(err).String()
				} else {
					o.PromptTokens, o.CompletionTokens = usage(req, resp)
				}
				recorder.Observe(o)

				if logger != nil {
					logger.Debug("LLM request: model=%s run=%s tokens=%d+%d status=%s duration=%dms",
						o.Model, o.RunID, o.PromptTokens, o.CompletionTokens, o.status(), o.Duration.Milliseconds())
				}
				return resp, err //nolint:wrapcheck // passthrough
			},
			next.GetModelName,
		)
	}
}
