package retry

import (
	"context"
	"fmt"
	"time"

	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
	"bugtriage/pkg/logx"
)

// Middleware retries failed completions according to policy. When the attempts run out on
// a retryable error it returns llmerrors ErrorTypeServiceUnavailable wrapping the last error.
func Middleware(policy *Policy) llm.Middleware {
	logger := logx.NewLogger("llm-retry")
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error
				attempts := 0

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if delay := policy.CalculateDelay(attempt); delay > 0 {
						timer := time.NewTimer(delay)
						select {
						case <-ctx.Done():
							timer.Stop()
							return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
						case <-timer.C:
						}
					}

					attempts = attempt
					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) || ctx.Err() != nil {
						return llm.CompletionResponse{}, err
					}
					if attempt < policy.Config.MaxAttempts {
						logger.Warn("%s attempt %d/%d failed, retrying: %v",
							next.GetModelName(), attempt, policy.Config.MaxAttempts, err)
					}
				}

				if attempts > 1 {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, attempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
