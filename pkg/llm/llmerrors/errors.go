// Package llmerrors defines typed errors for LLM provider interactions,
// with retry semantics attached to each error class.
package llmerrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType classifies LLM failures for retry and reporting decisions.
type ErrorType int

const (
	// ErrorTypeUnknown is the default for unclassified failures.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeRateLimit indicates the provider throttled the request (HTTP 429).
	ErrorTypeRateLimit
	// ErrorTypeAuth indicates invalid or missing credentials (HTTP 401/403).
	ErrorTypeAuth
	// ErrorTypeTransient indicates a temporary failure (HTTP 5xx, network resets).
	ErrorTypeTransient
	// ErrorTypeBadPrompt indicates the request itself was rejected (HTTP 400).
	ErrorTypeBadPrompt
	// ErrorTypeEmptyResponse indicates the provider returned no usable content.
	ErrorTypeEmptyResponse
)

// String returns the human-readable name of the error type.
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	default:
		return "unknown"
	}
}

// Error is a classified LLM failure. It wraps the underlying provider error
// so callers can use errors.Is/As while switching on Type for policy.
type Error struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("llm %s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("llm %s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether retrying the same request may succeed.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeTransient, ErrorTypeEmptyResponse:
		return true
	default:
		return false
	}
}

// New creates a classified error without an underlying cause.
func New(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(t ErrorType, err error, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithStatus attaches the HTTP status code that produced the error.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// TypeOf extracts the error type from any error, defaulting to unknown.
func TypeOf(err error) ErrorType {
	var le *Error
	if errors.As(err, &le) {
		return le.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether any error in the chain is a retryable LLM error.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.IsRetryable()
	}
	return false
}

// RetryConfig controls backoff behavior for one error class.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// retryConfigs maps each error type to its backoff policy. Rate limits back
// off hard; transient failures retry quickly; empty responses get one cheap
// retry since the request was already accepted.
var retryConfigs = map[ErrorType]RetryConfig{
	ErrorTypeRateLimit: {
		MaxAttempts:  5,
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	},
	ErrorTypeTransient: {
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	},
	ErrorTypeEmptyResponse: {
		MaxAttempts:  2,
		InitialDelay: 1 * time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   1.5,
		Jitter:       false,
	},
}

// GetRetryConfig returns the backoff policy for an error type. Non-retryable
// types get MaxAttempts 1 (no retry).
func GetRetryConfig(t ErrorType) RetryConfig {
	if cfg, ok := retryConfigs[t]; ok {
		return cfg
	}
	return RetryConfig{MaxAttempts: 1}
}

// maxPromptPreview bounds how much prompt text may appear in logs.
const maxPromptPreview = 120

// SanitizePrompt truncates prompt text for safe inclusion in log messages.
func SanitizePrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) <= maxPromptPreview {
		return prompt
	}
	return string(runes[:maxPromptPreview]) + "..."
}
