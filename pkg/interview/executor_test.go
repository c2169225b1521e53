package interview

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/llm"
	"saga/pkg/session"
)

// subjectFunc adapts a function to the SubjectSource interface.
type subjectFunc func(ctx context.Context, state *session.SessionState, question string) (string, error)

func (f subjectFunc) Answer(ctx context.Context, state *session.SessionState, question string) (string, error) {
	return f(ctx, state, question)
}

// TestContinueExecutorRecordsPairedTurns verifies one round appends exactly
// one question/answer pair and moves the session into the interview phase.
func TestContinueExecutorRecordsPairedTurns(t *testing.T) {
	iv := NewInterviewer(llm.NewMockClientWithContent(), pipelineDefaults(), nil)
	subject := subjectFunc(func(_ context.Context, _ *session.SessionState, question string) (string, error) {
		assert.Equal(t, OpeningQuestion, question)
		return "I'm Chen Jianguo, seventy-two this year.", nil
	})
	exec := NewContinueExecutor(iv, subject, nil)

	state := session.NewState("Chen Jianguo")
	require.NoError(t, exec.Execute(context.Background(), state))

	assert.Equal(t, session.PhaseInterview, state.Phase)
	require.Len(t, state.Dialogue, 2)
	assert.Equal(t, session.SpeakerInterviewer, state.Dialogue[0].Speaker)
	assert.Equal(t, session.SpeakerSubject, state.Dialogue[1].Speaker)
	assert.Equal(t, 1, state.Rounds())
}

// TestContinueExecutorSkipsRoundWhenSubjectFails verifies an unanswered
// question leaves the transcript untouched — no dangling half-rounds.
func TestContinueExecutorSkipsRoundWhenSubjectFails(t *testing.T) {
	iv := NewInterviewer(llm.NewMockClientWithContent(), pipelineDefaults(), nil)
	subject := subjectFunc(func(context.Context, *session.SessionState, string) (string, error) {
		return "", fmt.Errorf("microphone unplugged")
	})
	exec := NewContinueExecutor(iv, subject, nil)

	state := session.NewState("Chen Jianguo")
	require.NoError(t, exec.Execute(context.Background(), state))
	assert.Empty(t, state.Dialogue)
}

// TestContinueExecutorPropagatesCancellation verifies context cancellation is
// the one failure that stops the round with an error.
func TestContinueExecutorPropagatesCancellation(t *testing.T) {
	iv := NewInterviewer(llm.NewMockClientWithContent(), pipelineDefaults(), nil)
	subject := subjectFunc(func(ctx context.Context, _ *session.SessionState, _ string) (string, error) {
		return "", ctx.Err()
	})
	exec := NewContinueExecutor(iv, subject, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := exec.Execute(ctx, session.NewState("Chen Jianguo"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestEndExecutorMovesPhaseOnly verifies ending the interview changes the
// phase marker and nothing else.
func TestEndExecutorMovesPhaseOnly(t *testing.T) {
	state := stateWithRounds(4)
	before := len(state.Dialogue)

	exec := NewEndExecutor(nil)
	require.NoError(t, exec.Execute(context.Background(), state))

	assert.Equal(t, session.PhasePostInterview, state.Phase)
	assert.Len(t, state.Dialogue, before)
}

// TestConsoleSubjectPrintsQuestionAndReadsAnswer verifies the console source
// prints the question and returns the typed line.
func TestConsoleSubjectPrintsQuestionAndReadsAnswer(t *testing.T) {
	var out strings.Builder
	subject := NewConsoleSubject(strings.NewReader("I was born in Harbin in 1954.\n"), &out)

	answer, err := subject.Answer(context.Background(), session.NewState("x"), "Where were you born?")
	require.NoError(t, err)
	assert.Equal(t, "I was born in Harbin in 1954.", answer)
	assert.Contains(t, out.String(), "Where were you born?")
}

// TestConsoleSubjectErrorsOnClosedInput verifies EOF surfaces as an error so
// the coordinator records a skipped round instead of an empty answer.
func TestConsoleSubjectErrorsOnClosedInput(t *testing.T) {
	subject := NewConsoleSubject(strings.NewReader(""), &strings.Builder{})
	_, err := subject.Answer(context.Background(), session.NewState("x"), "Anything?")
	require.Error(t, err)
}
