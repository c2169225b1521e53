// Package middleware provides composable wrappers around llm.LLMClient:
// retry with typed backoff, provider fallback, and request logging.
package middleware

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"saga/pkg/llm"
	"saga/pkg/llm/llmerrors"
)

// Retry returns middleware that retries failed completions using the backoff
// policy attached to the classified error type. Non-retryable errors surface
// immediately.
func Retry(logger Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return &retryClient{next: next, logger: logger}
	}
}

// Logger is the minimal logging surface the middleware needs. *logx.Logger
// satisfies it.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
}

type retryClient struct {
	next   llm.LLMClient
	logger Logger
}

func (r *retryClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	var lastErr error
	var cfg llmerrors.RetryConfig
	var errorType llmerrors.ErrorType
	start := time.Now()

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, cfg)
			select {
			case <-ctx.Done():
				return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			if attempt > 0 && r.logger != nil {
				r.logger.Info("completion from %s succeeded after %d retries in %v",
					r.next.GetModelName(), attempt, time.Since(start))
			}
			return resp, nil
		}

		lastErr = err
		classified := llmerrors.Classify(err)
		errorType = classified.Type
		cfg = llmerrors.GetRetryConfig(errorType)

		// attempt is zero-based, MaxAttempts counts total tries
		final := !classified.IsRetryable() || attempt+1 >= cfg.MaxAttempts
		if r.logger != nil {
			r.logger.Warn("completion from %s failed (attempt %d/%d, %s, final=%v): %v",
				r.next.GetModelName(), attempt+1, cfg.MaxAttempts, errorType, final, err)
		}
		if final {
			break
		}
	}

	return llm.CompletionResponse{}, fmt.Errorf("failed after %d attempts (%s) in %v: %w",
		cfg.MaxAttempts, errorType, time.Since(start), lastErr)
}

func (r *retryClient) GetModelName() string {
	return r.next.GetModelName()
}

// backoffDelay computes exponential backoff with optional jitter of up to
// ten percent in either direction.
func backoffDelay(attempt int, cfg llmerrors.RetryConfig) time.Duration {
	if attempt == 0 || cfg.InitialDelay <= 0 {
		return 0
	}

	delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay += time.Duration((rand.Float64()*0.2 - 0.1) * float64(delay))
		if delay < 0 {
			delay = cfg.InitialDelay
		}
	}
	return delay
}
