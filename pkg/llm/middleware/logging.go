package middleware

import (
	"context"
	"time"

	"saga/pkg/llm"
	"saga/pkg/llm/llmerrors"
)

// Logging returns middleware that records each completion attempt with its
// model, message count, duration, and outcome.
func Logging(logger Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return &loggingClient{next: next, logger: logger}
	}
}

type loggingClient struct {
	next   llm.LLMClient
	logger Logger
}

func (l *loggingClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := l.next.Complete(ctx, req)
	elapsed := time.Since(start)

	if l.logger == nil {
		return resp, err
	}

	if err != nil {
		preview := ""
		if len(req.Messages) > 0 {
			preview = llmerrors.SanitizePrompt(req.Messages[len(req.Messages)-1].Content)
		}
		l.logger.Warn("completion failed: model=%s messages=%d elapsed=%v prompt=%q err=%v",
			l.next.GetModelName(), len(req.Messages), elapsed, preview, err)
		return resp, err
	}

	l.logger.Info("completion ok: model=%s messages=%d elapsed=%v response_chars=%d stop=%s",
		l.next.GetModelName(), len(req.Messages), elapsed, len(resp.Content), resp.StopReason)
	return resp, nil
}

func (l *loggingClient) GetModelName() string {
	return l.next.GetModelName()
}
