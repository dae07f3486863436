package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/internal/mocks"
	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
)

func fastPolicy(attempts int) *Policy {
	return NewPolicy(Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}, nil)
}

func TestRetryRecoversFromTransientErrors(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	calls := 0
	mock.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		calls++
		if calls < 3 {
			return llm.CompletionResponse{}, errors.New("503 service unavailable")
		}
		return llm.CompletionResponse{Content: "ok"}, nil
	})

	client := llm.Chain(mock, Middleware(fastPolicy(3)))
	resp, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, mock.GetCompleteCallCount())
}

func TestRetryExhaustionBecomesServiceUnavailable(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	cause := errors.New("rate limit exceeded")
	mock.FailCompleteWith(cause)

	_, err := llm.Chain(mock, Middleware(fastPolicy(3))).Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, mock.GetCompleteCallCount())
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	auth := llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "bad key")
	mock.FailCompleteWith(auth)

	_, err := llm.Chain(mock, Middleware(fastPolicy(5))).Complete(context.Background(), llm.CompletionRequest{})
	assert.Same(t, auth, err)
	assert.Equal(t, 1, mock.GetCompleteCallCount())
}

func TestRetryStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := mocks.NewMockLLMClient()
	mock.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		cancel()
		return llm.CompletionResponse{}, errors.New("connection reset by peer")
	})

	_, err := llm.Chain(mock, Middleware(fastPolicy(5))).Complete(ctx, llm.CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, mock.GetCompleteCallCount())
	assert.False(t, llmerrors.IsServiceUnavailable(err))
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(context.Canceled))
	assert.True(t, ShouldRetry(context.DeadlineExceeded))
	assert.True(t, ShouldRetry(errors.New("502 bad gateway")))
	assert.False(t, ShouldRetry(errors.New("401 unauthorized")))
	assert.False(t, ShouldRetry(llmerrors.NewServiceUnavailableError(errors.New("x"), 3)))
}

func TestCalculateDelay(t *testing.T) {
	p := NewPolicy(Config{MaxAttempts: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, BackoffFactor: 2}, nil)
	assert.Zero(t, p.CalculateDelay(1))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, 250*time.Millisecond, p.CalculateDelay(4))

	p.Config.Jitter = true
	for range 20 {
		d := p.CalculateDelay(2)
		assert.GreaterOrEqual(t, d, 90*time.Millisecond)
		assert.LessOrEqual(t, d, 110*time.Millisecond)
	}
}
