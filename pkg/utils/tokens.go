// Package utils provides token counting and text clipping utilities shared
// across the pipeline.
package utils

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter provides accurate token counting for different models.
type TokenCounter struct {
	codec tokenizer.Codec
}

// NewTokenCounter creates a token counter for the specified model. All
// providers are approximated with the GPT-4 encoding, which is close enough
// for prompt budgeting.
func NewTokenCounter(model string) (*TokenCounter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec for model %s: %w", model, err)
	}
	return &TokenCounter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(text string) int {
	if tc.codec == nil {
		// Fallback to character-based estimation (4 chars ~ 1 token)
		return len(text) / 4
	}
	count, err := tc.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return count
}

// CountTokensSimple counts tokens without requiring a TokenCounter instance.
func CountTokensSimple(text string) int {
	counter, err := NewTokenCounter("gpt-4")
	if err != nil {
		return len(text) / 4
	}
	return counter.CountTokens(text)
}

// ValidateTokenLimit reports whether text fits within the token limit.
func (tc *TokenCounter) ValidateTokenLimit(text string, limit int) bool {
	return tc.CountTokens(text) <= limit
}

// TruncateToTokenLimit truncates text to fit within the specified token
// limit. The cut is proportional by characters, not exact token boundaries,
// and never splits a rune.
func (tc *TokenCounter) TruncateToTokenLimit(text string, limit int) string {
	currentTokens := tc.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	runes := []rune(text)
	ratio := float64(limit) / float64(currentTokens)
	runeLimit := int(float64(len(runes)) * ratio * 0.9) // safety margin

	if runeLimit >= len(runes) {
		return text
	}
	return string(runes[:runeLimit]) + "..."
}

// Head returns the first maxRunes runes of s, appending an ellipsis marker
// when anything was cut.
func Head(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// Tail returns the last maxRunes runes of s, prepending an ellipsis marker
// when anything was cut.
func Tail(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return "..." + string(runes[len(runes)-maxRunes:])
}
