// Package validation rejects empty LLM replies before they reach the triage loop.
package validation

import (
	"context"
	"strings"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/logx"
)

// Guidance is appended to the request when the first reply comes back empty.
const Guidance = "Your previous reply was empty. Either call one of the available tools " +
	"or reply with a written summary of your findings."

// EmptyResponse returns a middleware that treats a reply with neither text nor tool calls
// as a failure. The first empty reply is retried once with Guidance appended as a user
// message; a second one returns llmerrors ErrorTypeEmptyResponse.
func EmptyResponse() llm.Middleware {
	logger := logx.NewLogger("empty-response")
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil || !isEmpty(resp) {
					return resp, err //nolint:wrapcheck // pass through
				}

				logger.Warn("%s returned an empty reply (stop_reason=%s), retrying with guidance",
					next.GetModelName(), resp.StopReason)
				retry := req
				retry.Messages = append(append([]llm.CompletionMessage(nil), req.Messages...), llm.NewUserMessage(Guidance))

				resp, err = next.Complete(ctx, retry)
				if err != nil {
					return resp, err //nolint:wrapcheck // pass through
				}
				if isEmpty(resp) {
					return resp, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse,
						next.GetModelName()+" returned two empty replies")
				}
				return resp, nil
			},
			next.GetModelName,
		)
	}
}

func isEmpty(resp llm.CompletionResponse) bool {
	return len(resp.ToolCalls) == 0 && strings.TrimSpace(resp.Content) == ""
}
