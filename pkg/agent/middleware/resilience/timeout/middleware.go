// Package timeout bounds each LLM call with its own deadline.
package timeout

import (
	"context"
	"errors"
	"time"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
)

// Middleware gives every Complete call a fresh deadline of duration. A call that runs out
// of time returns an llmerrors ErrorTypeTimeout so the retry middleware above can try again.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if duration <= 0 {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
					return resp, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTimeout, err,
						next.GetModelName()+" call exceeded "+duration.String())
				}
				return resp, err
			},
			next.GetModelName,
		)
	}
}
