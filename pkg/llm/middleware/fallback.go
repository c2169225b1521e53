package middleware

import (
	"context"
	"fmt"

	"saga/pkg/llm"
	"saga/pkg/llm/llmerrors"
)

// FallbackClient tries a primary client and, when it fails, retries the
// request against a backup client. Both clients are expected to carry their
// own retry middleware, so one failure here means that client's retry budget
// is already spent.
type FallbackClient struct {
	primary llm.LLMClient
	backup  llm.LLMClient
	logger  Logger
}

// NewFallbackClient creates a fallback client. backup may be nil, in which
// case primary failures surface directly.
func NewFallbackClient(primary, backup llm.LLMClient, logger Logger) *FallbackClient {
	return &FallbackClient{
		primary: primary,
		backup:  backup,
		logger:  logger,
	}
}

// Complete implements the llm.LLMClient interface.
func (f *FallbackClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, primaryErr := f.primary.Complete(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if f.backup == nil {
		return llm.CompletionResponse{}, primaryErr
	}
	if ctx.Err() != nil {
		return llm.CompletionResponse{}, primaryErr
	}

	if f.logger != nil {
		f.logger.Warn("primary model %s failed (%s), falling back to %s: %v",
			f.primary.GetModelName(), llmerrors.TypeOf(primaryErr), f.backup.GetModelName(), primaryErr)
	}

	resp, backupErr := f.backup.Complete(ctx, req)
	if backupErr != nil {
		return llm.CompletionResponse{}, fmt.Errorf("backup model %s also failed: %w (primary: %v)",
			f.backup.GetModelName(), backupErr, primaryErr)
	}

	if f.logger != nil {
		f.logger.Info("backup model %s succeeded after primary failure", f.backup.GetModelName())
	}
	return resp, nil
}

// GetModelName returns the primary model name.
func (f *FallbackClient) GetModelName() string {
	return f.primary.GetModelName()
}
