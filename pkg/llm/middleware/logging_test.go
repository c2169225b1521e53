package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/llm"
)

// TestLoggingRecordsOutcome verifies one line per completion: Info on
// success, Warn with the prompt tail on failure, response untouched.
func TestLoggingRecordsOutcome(t *testing.T) {
	logger := &captureLogger{}
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{Content: "a reply", StopReason: "end_turn"}},
		[]error{errors.New("status code: 503")},
	)
	client := llm.Chain(mock, Logging(logger))
	req := llm.NewCompletionRequest(llm.NewUserMessage("Tell me about the rail yard."))

	_, err := client.Complete(context.Background(), req)
	require.Error(t, err)
	require.Len(t, logger.warns, 1)
	assert.Contains(t, logger.warns[0], "model=mock-model")
	assert.Contains(t, logger.warns[0], "Tell me about the rail yard.")

	resp, err := client.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a reply", resp.Content)
	require.Len(t, logger.infos, 1)
	assert.Contains(t, logger.infos[0], "response_chars=7")
	assert.Contains(t, logger.infos[0], "stop=end_turn")
}

// TestLoggingWithoutLoggerPassesThrough verifies a nil logger disables
// logging without touching the call.
func TestLoggingWithoutLoggerPassesThrough(t *testing.T) {
	mock := llm.NewMockClientWithContent("ok")
	client := llm.Chain(mock, Logging(nil))

	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("hi")))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "mock-model", client.GetModelName())
}
