package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/llm"
	"saga/pkg/logx"
)

type recordedCall struct {
	model            string
	sessionID        string
	promptTokens     int
	completionTokens int
	cost             float64
	success          bool
	errorType        string
	duration         time.Duration
}

type captureRecorder struct {
	calls []recordedCall
}

func (c *captureRecorder) ObserveLLMRequest(
	model, sessionID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	c.calls = append(c.calls, recordedCall{
		model:            model,
		sessionID:        sessionID,
		promptTokens:     promptTokens,
		completionTokens: completionTokens,
		cost:             cost,
		success:          success,
		errorType:        errorType,
		duration:         duration,
	})
}

// TestMetricsRecordsSuccessfulCompletion verifies a successful call records
// token estimates and the session ID riding on the context.
func TestMetricsRecordsSuccessfulCompletion(t *testing.T) {
	recorder := &captureRecorder{}
	mock := llm.NewMockClientWithContent("a reply with several words in it")
	client := llm.Chain(mock, Metrics(recorder))

	ctx := logx.WithSessionID(context.Background(), "chen_20260102_030405_deadbeef")
	req := llm.NewCompletionRequest(llm.NewUserMessage("Tell me about your childhood in Harbin."))

	_, err := client.Complete(ctx, req)
	require.NoError(t, err)

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	assert.Equal(t, "mock-model", call.model)
	assert.Equal(t, "chen_20260102_030405_deadbeef", call.sessionID)
	assert.True(t, call.success)
	assert.Empty(t, call.errorType)
	assert.Positive(t, call.promptTokens)
	assert.Positive(t, call.completionTokens)
}

// TestMetricsRecordsClassifiedFailure verifies a failed call records the
// error type and no token usage.
func TestMetricsRecordsClassifiedFailure(t *testing.T) {
	recorder := &captureRecorder{}
	mock := llm.NewMockClient(nil, []error{errors.New("status code: 429 too many requests")})
	client := llm.Chain(mock, Metrics(recorder))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("hi")))
	require.Error(t, err)

	require.Len(t, recorder.calls, 1)
	call := recorder.calls[0]
	assert.False(t, call.success)
	assert.Equal(t, "rate_limit", call.errorType)
	assert.Zero(t, call.promptTokens)
	assert.Zero(t, call.completionTokens)
	assert.Zero(t, call.cost)
}

// TestMetricsWithoutSessionID verifies calls outside a session still record,
// with an empty session label.
func TestMetricsWithoutSessionID(t *testing.T) {
	recorder := &captureRecorder{}
	mock := llm.NewMockClientWithContent("ok")
	client := llm.Chain(mock, Metrics(recorder))

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest(llm.NewUserMessage("hi")))
	require.NoError(t, err)

	require.Len(t, recorder.calls, 1)
	assert.Empty(t, recorder.calls[0].sessionID)
}
