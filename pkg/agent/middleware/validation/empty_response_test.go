package validation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bugtriage/internal/mocks"
	"bugtriage/pkg/agent/llm"
	"bugtriage/pkg/agent/llmerrors"
)

func request() llm.CompletionRequest {
	return llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("Typo in footer")})
}

func TestEmptyReplyIsRetriedWithGuidance(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWithSequence([]llm.CompletionResponse{
		{Content: "  ", StopReason: "end_turn"},
		{Content: "This is a minor, low priority issue.", StopReason: "end_turn"},
	})

	resp, err := llm.Chain(mock, EmptyResponse()).Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "This is a minor, low priority issue.", resp.Content)
	assert.Equal(t, 2, mock.GetCompleteCallCount())

	msgs := mock.LastCompleteCallMessages()
	assert.Equal(t, Guidance, msgs[len(msgs)-1].Content)
	assert.Len(t, mock.GetNthCompleteCall(0).Messages, 1, "the original request is not modified")
}

func TestTwoEmptyRepliesFail(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWith("")

	_, err := llm.Chain(mock, EmptyResponse()).Complete(context.Background(), request())
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
	assert.Equal(t, 2, mock.GetCompleteCallCount())
}

func TestToolCallsAreNotEmpty(t *testing.T) {
	mock := mocks.NewMockLLMClient()
	mock.RespondWithToolCall("ticket_search", map[string]any{"query": "typo"})

	resp, err := llm.Chain(mock, EmptyResponse()).Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, 1, mock.GetCompleteCallCount())
}
