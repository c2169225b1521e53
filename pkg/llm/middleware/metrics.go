package middleware

import (
	"context"
	"strings"
	"time"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/llm/llmerrors"
	"saga/pkg/logx"
	"saga/pkg/utils"
)

// Recorder receives telemetry for completed model calls. The metrics
// package's Prometheus recorder satisfies it.
type Recorder interface {
	ObserveLLMRequest(
		model, sessionID string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// Metrics returns middleware that records request counts, token usage,
// cost, and latency for every completion. The session ID is read from the
// context so all of one session's calls land in the same series.
func Metrics(recorder Recorder) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return &metricsClient{next: next, recorder: recorder}
	}
}

type metricsClient struct {
	next     llm.LLMClient
	recorder Recorder
}

func (m *metricsClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := m.next.Complete(ctx, req)
	duration := time.Since(start)

	model := m.next.GetModelName()
	sessionID := logx.SessionID(ctx)

	var promptTokens, completionTokens int
	var cost float64
	if err == nil {
		promptTokens, completionTokens = countUsage(req, resp)
		cost = config.CalculateCost(model, promptTokens, completionTokens)
	}

	errorType := ""
	if err != nil {
		errorType = llmerrors.Classify(err).Type.String()
	}

	m.recorder.ObserveLLMRequest(model, sessionID, promptTokens, completionTokens, cost, err == nil, errorType, duration)

	return resp, err
}

func (m *metricsClient) GetModelName() string {
	return m.next.GetModelName()
}

// countUsage estimates token usage from the request and response text.
// Providers report exact counts in different shapes; the estimate keeps the
// middleware provider-agnostic.
func countUsage(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	var prompt strings.Builder
	for i := range req.Messages {
		prompt.WriteString(req.Messages[i].Content)
		prompt.WriteString("\n")
	}
	return utils.CountTokensSimple(prompt.String()), utils.CountTokensSimple(resp.Content)
}
