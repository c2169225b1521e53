package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestFirstJSONObject verifies the brace scanner survives prose and fences
// around the payload.
func TestFirstJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, FirstJSONObject("prefix {\"a\": 1} suffix"))
	assert.Equal(t, `{"a": {"b": 2}}`, FirstJSONObject("```json\n{\"a\": {\"b\": 2}}\n```"))
	assert.Equal(t, "", FirstJSONObject("no json here"))
	assert.Equal(t, "", FirstJSONObject("} backwards {"))
}
