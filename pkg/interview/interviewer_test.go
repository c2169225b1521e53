package interview

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/session"
)

func pipelineDefaults() config.PipelineConfig {
	return *config.DefaultConfig().Pipeline
}

// stateWithRounds returns a session with n completed question/answer rounds.
func stateWithRounds(n int) *session.SessionState {
	state := session.NewState("Chen Jianguo")
	for i := 0; i < n; i++ {
		state.AppendTurn(session.SpeakerInterviewer, fmt.Sprintf("question %d", i+1))
		state.AppendTurn(session.SpeakerSubject, fmt.Sprintf("answer %d about my life", i+1))
	}
	return state
}

// TestFirstQuestionIsFixedOpening verifies the opening question never touches
// the backend, so an interview can always start.
func TestFirstQuestionIsFixedOpening(t *testing.T) {
	mock := llm.NewMockClientWithContent() // would error if called
	iv := NewInterviewer(mock, pipelineDefaults(), nil)

	question, thinking, err := iv.NextQuestion(context.Background(), session.NewState("Chen Jianguo"))
	require.NoError(t, err)
	assert.Equal(t, OpeningQuestion, question)
	assert.Nil(t, thinking)
	assert.Equal(t, 0, mock.CallCount())
}

// TestNextQuestionUsesBackend verifies a generated question is extracted from
// the tagged output along with the interviewer's thinking.
func TestNextQuestionUsesBackend(t *testing.T) {
	raw := `<thinking>
  <intent>probe the father's work life</intent>
  <memory>grew up near the rail yard</memory>
  <mental_state>relaxed, telling longer stories</mental_state>
</thinking>
<response>What kind of work did your father do in those years?</response>`
	mock := llm.NewMockClientWithContent(raw)
	iv := NewInterviewer(mock, pipelineDefaults(), nil)

	question, thinking, err := iv.NextQuestion(context.Background(), stateWithRounds(2))
	require.NoError(t, err)
	assert.Equal(t, "What kind of work did your father do in those years?", question)
	require.NotNil(t, thinking)
	assert.Equal(t, "probe the father's work life", thinking.Intent)
	assert.Equal(t, "grew up near the rail yard", thinking.Memory)
	assert.Equal(t, "relaxed, telling longer stories", thinking.MentalState)
}

// TestNextQuestionFallsBackToScript verifies a backend failure degrades to
// the scripted question for that round instead of erroring out.
func TestNextQuestionFallsBackToScript(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{fmt.Errorf("backend down")})
	iv := NewInterviewer(mock, pipelineDefaults(), nil)

	state := stateWithRounds(3) // next round is 4
	question, thinking, err := iv.NextQuestion(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, scriptedQuestions[3], question)
	assert.Nil(t, thinking)
}

// TestParseQuestionVariants covers the tag combinations backends actually
// produce: full tags, response only, thinking only, and no tags at all.
func TestParseQuestionVariants(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantQuestion string
		wantThinking bool
	}{
		{
			name:         "response tag only",
			raw:          "<response>Where were you born, and what was the town like?</response>",
			wantQuestion: "Where were you born, and what was the town like?",
		},
		{
			name:         "thinking then bare question",
			raw:          "<thinking><intent>origins</intent></thinking>\nWhere were you born, and what was the town like?",
			wantQuestion: "Where were you born, and what was the town like?",
			wantThinking: true,
		},
		{
			name:         "no tags at all",
			raw:          "Where were you born, and what was the town like?",
			wantQuestion: "Where were you born, and what was the town like?",
		},
		{
			name:         "stray closing tags are stripped",
			raw:          "Where were you born?</response></thinking>",
			wantQuestion: "Where were you born?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			question, thinking := parseQuestion(tt.raw)
			assert.Equal(t, tt.wantQuestion, question)
			if tt.wantThinking {
				assert.NotNil(t, thinking)
			} else {
				assert.Nil(t, thinking)
			}
		})
	}
}

// TestParseQuestionKeepsRawWhenStrippedTooShort verifies that tag stripping
// never yields a fragment too short to ask — the raw output is used instead.
func TestParseQuestionKeepsRawWhenStrippedTooShort(t *testing.T) {
	raw := "<thinking><intent>everything is in the tags</intent></thinking>ok?"
	question, _ := parseQuestion(raw)
	assert.Equal(t, raw, question)
}

// TestStageFocusFollowsLifeArc verifies the round-by-round interview plan.
func TestStageFocusFollowsLifeArc(t *testing.T) {
	assert.Contains(t, stageFocus(1), "childhood")
	assert.Contains(t, stageFocus(5), "childhood")
	assert.Contains(t, stageFocus(6), "education")
	assert.Contains(t, stageFocus(10), "education")
	assert.Contains(t, stageFocus(11), "marriage")
	assert.Contains(t, stageFocus(15), "marriage")
	assert.Contains(t, stageFocus(16), "challenges")
	assert.Contains(t, stageFocus(40), "challenges")
}

// TestQuestionPromptWindsDownPastCap verifies the prompt asks for a closing
// question once the interview exceeds the configured round cap.
func TestQuestionPromptWindsDownPastCap(t *testing.T) {
	mock := llm.NewMockClientWithContent("<response>Looking back, what mattered most to you?</response>")
	cfg := pipelineDefaults()
	cfg.MaxInterviewRounds = 2
	iv := NewInterviewer(mock, cfg, nil)

	_, _, err := iv.NextQuestion(context.Background(), stateWithRounds(3))
	require.NoError(t, err)

	calls := mock.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Messages[1].Content
	assert.Contains(t, prompt, "steer toward reflection")
	assert.Contains(t, prompt, "round 4")
}

// TestQuestionPromptCarriesConversation verifies the prompt includes the
// transcript tail and the subject's latest answer.
func TestQuestionPromptCarriesConversation(t *testing.T) {
	mock := llm.NewMockClientWithContent("<response>And what happened after that?</response>")
	iv := NewInterviewer(mock, pipelineDefaults(), nil)

	state := stateWithRounds(2)
	_, _, err := iv.NextQuestion(context.Background(), state)
	require.NoError(t, err)

	prompt := mock.Calls()[0].Messages[1].Content
	assert.Contains(t, prompt, "answer 2 about my life")
	assert.Contains(t, prompt, "Subject's latest answer")
	assert.True(t, strings.Contains(prompt, "Current focus"))
}

// TestScriptedQuestionClamps verifies rounds beyond the script stay on the
// final reflective question instead of cycling back to introductions.
func TestScriptedQuestionClamps(t *testing.T) {
	assert.Equal(t, scriptedQuestions[0], scriptedQuestion(1))
	assert.Equal(t, scriptedQuestions[9], scriptedQuestion(10))
	assert.Equal(t, scriptedQuestions[9], scriptedQuestion(50))
}
