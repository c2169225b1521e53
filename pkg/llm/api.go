// Package llm defines the provider-neutral completion API used by every
// component that talks to a generative backend.
package llm

import (
	"context"
	"fmt"
)

// Role identifies the author of a completion message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CompletionMessage is a single message in a completion request.
type CompletionMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral completion request.
type CompletionRequest struct {
	Messages    []CompletionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float32             `json:"temperature"`
}

// CompletionResponse is a provider-neutral completion result.
type CompletionResponse struct {
	Content    string `json:"content"`
	StopReason string `json:"stop_reason,omitempty"`
}

// Default request parameters.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.3
)

// NewCompletionRequest creates a request with default parameters.
func NewCompletionRequest(messages ...CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}

// LLMClient is the minimal surface the pipeline needs from a backend.
// The coordinator and every executor consume full completions; streaming
// is deliberately absent.
type LLMClient interface {
	// Complete sends a completion request and blocks until the full
	// response (or an error) is available. Implementations must be safe
	// for concurrent use across independent sessions and must not cache
	// session-specific data.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model identifier used by this client.
	GetModelName() string
}

// Validate checks a request for obvious problems before it reaches a
// provider client.
func (r *CompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("completion request has no messages")
	}
	if r.MaxTokens <= 0 {
		return fmt.Errorf("completion request max tokens must be positive, got %d", r.MaxTokens)
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return fmt.Errorf("completion request temperature out of range: %f", r.Temperature)
	}
	return nil
}
