package interview

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/session"
)

// TestConsoleSubjectReadsAnswer verifies the question is printed as a prompt
// and the typed line comes back trimmed.
func TestConsoleSubjectReadsAnswer(t *testing.T) {
	var out bytes.Buffer
	subject := NewConsoleSubject(strings.NewReader("  It began at the rail yard.  \n"), &out)

	answer, err := subject.Answer(context.Background(), session.NewState("Chen Jianguo"), "Where did your story begin?")
	require.NoError(t, err)
	assert.Equal(t, "It began at the rail yard.", answer)
	assert.Contains(t, out.String(), "Where did your story begin?")
}

// TestConsoleSubjectClosedInput verifies EOF and blank lines surface as
// errors so the round is skipped instead of recorded empty.
func TestConsoleSubjectClosedInput(t *testing.T) {
	subject := NewConsoleSubject(strings.NewReader(""), &bytes.Buffer{})
	_, err := subject.Answer(context.Background(), session.NewState("Chen Jianguo"), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input closed")

	subject = NewConsoleSubject(strings.NewReader("   \n"), &bytes.Buffer{})
	_, err = subject.Answer(context.Background(), session.NewState("Chen Jianguo"), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty answer")
}
