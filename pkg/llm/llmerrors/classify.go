package llmerrors

import (
	"context"
	"errors"
	"strings"
)

// Classify maps a raw provider error to a structured error type. It checks
// context errors first, then HTTP status codes embedded in the error text,
// then falls back to substring heuristics. Already-classified errors pass
// through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var le *Error
	if errors.As(err, &le) {
		return le
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return Wrap(ErrorTypeTransient, err, "request canceled")
	}

	errStr := err.Error()

	switch code := extractStatusCode(errStr); code {
	case 401:
		return Wrap(ErrorTypeAuth, err, "authentication failed, check API key").WithStatus(code)
	case 403:
		return Wrap(ErrorTypeAuth, err, "permission denied, check API access").WithStatus(code)
	case 429:
		return Wrap(ErrorTypeRateLimit, err, "rate limit exceeded").WithStatus(code)
	case 400:
		return Wrap(ErrorTypeBadPrompt, err, "bad request, check prompt format and parameters").WithStatus(code)
	case 500, 502, 503, 504:
		return Wrap(ErrorTypeTransient, err, "server error").WithStatus(code)
	}

	lower := strings.ToLower(errStr)

	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary") ||
		strings.Contains(errStr, "EOF") ||
		strings.Contains(lower, "reset") {
		return Wrap(ErrorTypeTransient, err, "network or connection error")
	}

	if strings.Contains(lower, "rate") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "overloaded") {
		return Wrap(ErrorTypeRateLimit, err, "rate limiting detected")
	}

	if strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "api key") ||
		strings.Contains(lower, "auth") {
		return Wrap(ErrorTypeAuth, err, "authentication error")
	}

	if strings.Contains(lower, "invalid") ||
		strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "too large") ||
		strings.Contains(lower, "context length") {
		return Wrap(ErrorTypeBadPrompt, err, "prompt or request error")
	}

	return Wrap(ErrorTypeUnknown, err, "unclassified error")
}

// extractStatusCode pulls an HTTP status code out of an error string.
// Provider SDKs usually embed the code in the message rather than exposing
// it structurally.
func extractStatusCode(errStr string) int {
	patterns := []string{
		"status code: ",
		"status: ",
		"http ",
		"code ",
	}

	lower := strings.ToLower(errStr)
	codes := []struct {
		prefix string
		code   int
	}{
		{"400", 400}, {"401", 401}, {"403", 403}, {"429", 429},
		{"500", 500}, {"502", 502}, {"503", 503}, {"504", 504},
	}

	for _, pattern := range patterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		start := idx + len(pattern)
		if start >= len(errStr) {
			continue
		}
		rest := errStr[start:]
		for _, c := range codes {
			if strings.HasPrefix(rest, c.prefix) {
				return c.code
			}
		}
	}

	return 0
}
