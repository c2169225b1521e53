package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
)

func decisionJSON(action string, confidence float64) string {
	return fmt.Sprintf(`{"next_action": %q, "reasoning": "scripted choice", "confidence": %.2f}`, action, confidence)
}

// TestParseDecisionStrictJSON verifies a plain JSON decision parses with all
// fields intact.
func TestParseDecisionStrictJSON(t *testing.T) {
	d, err := parseDecision(decisionJSON("extract_events", 0.77))
	require.NoError(t, err)

	assert.Equal(t, session.ActionExtractEvents, d.NextAction)
	assert.Equal(t, "scripted choice", d.Reasoning)
	assert.InDelta(t, 0.77, d.Confidence, 1e-9)
	assert.Equal(t, SourceModel, d.Source)
}

// TestParseDecisionStripsFences verifies markdown-fenced JSON is tolerated.
func TestParseDecisionStripsFences(t *testing.T) {
	for _, raw := range []string{
		"```json\n" + decisionJSON("write_biography", 0.9) + "\n```",
		"```\n" + decisionJSON("write_biography", 0.9) + "\n```",
		"  \n" + decisionJSON("write_biography", 0.9) + "  ",
	} {
		d, err := parseDecision(raw)
		require.NoError(t, err, "raw: %q", raw)
		assert.Equal(t, session.ActionWriteBiography, d.NextAction)
	}
}

// TestParseDecisionRejectsBadPayloads verifies every malformed shape is
// refused so the caller falls back to the rule table.
func TestParseDecisionRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"not json":            "let me think about this...",
		"out-of-set action":   `{"next_action": "polish_draft", "reasoning": "r", "confidence": 0.8}`,
		"missing action":      `{"reasoning": "r", "confidence": 0.8}`,
		"missing reasoning":   `{"next_action": "complete", "confidence": 0.8}`,
		"blank reasoning":     `{"next_action": "complete", "reasoning": "  ", "confidence": 0.8}`,
		"missing confidence":  `{"next_action": "complete", "reasoning": "r"}`,
		"negative confidence": `{"next_action": "complete", "reasoning": "r", "confidence": -0.1}`,
		"confidence above 1":  `{"next_action": "complete", "reasoning": "r", "confidence": 1.5}`,
	}
	for name, raw := range cases {
		_, err := parseDecision(raw)
		assert.Error(t, err, "%s should be rejected", name)
	}
}

// TestDecideUsesModelDecision verifies a healthy backend answer is used
// verbatim.
func TestDecideUsesModelDecision(t *testing.T) {
	client := llm.NewMockClientWithContent(decisionJSON("continue_interview", 0.95))
	engine := NewEngine(client, pipelineDefaults(), logx.NewLogger("test"))

	d := engine.Decide(context.Background(), session.NewState("s"))

	assert.Equal(t, session.ActionContinueInterview, d.NextAction)
	assert.Equal(t, SourceModel, d.Source)
	assert.Equal(t, 1, client.CallCount())
}

// TestDecideFallsBackOnBackendError verifies a failing backend degrades to
// the rule table instead of erroring.
func TestDecideFallsBackOnBackendError(t *testing.T) {
	client := llm.NewMockClient(nil, []error{errors.New("backend down")})
	engine := NewEngine(client, pipelineDefaults(), logx.NewLogger("test"))

	d := engine.Decide(context.Background(), session.NewState("s"))

	assert.Equal(t, SourceFallback, d.Source)
	assert.Equal(t, session.ActionContinueInterview, d.NextAction, "fresh session rule")
}

// TestDecideFallsBackOnGarbageOutput verifies unparseable model output
// degrades to the rule table.
func TestDecideFallsBackOnGarbageOutput(t *testing.T) {
	client := llm.NewMockClientWithContent("I think we should keep interviewing!")
	engine := NewEngine(client, pipelineDefaults(), logx.NewLogger("test"))

	state := session.NewState("s")
	state.AddBiographyVersion("draft", false, session.StrategyInitialDraft)

	d := engine.Decide(context.Background(), state)

	assert.Equal(t, SourceFallback, d.Source)
	assert.Equal(t, session.ActionEvaluateQuality, d.NextAction)
}

// TestDecisionPromptIsBoundedAndInformative verifies the snapshot carries the
// key metrics, truncates history to the window, and warns about repetition.
func TestDecisionPromptIsBoundedAndInformative(t *testing.T) {
	state := session.NewState("prompt")
	addRounds(state, 2, 30)
	state.AddBiographyVersion("young years in the north", false, session.StrategyInitialDraft)
	for i := 1; i <= 15; i++ {
		state.RecordAction(i, session.ActionContinueInterview, "keep going")
	}

	prompt := buildDecisionPrompt(state)

	assert.Contains(t, prompt, "Interview rounds: 2")
	assert.Contains(t, prompt, "Biography versions: 1")
	assert.Contains(t, prompt, "Quality evaluated: no")
	assert.NotContains(t, prompt, "iteration 5:", "history beyond the window must be dropped")
	assert.Contains(t, prompt, "iteration 6:")
	assert.Contains(t, prompt, "three times in a row")
	assert.Contains(t, prompt, "young years in the north")
}

// TestDecisionPromptOnFreshState verifies an empty session renders without
// placeholder panics.
func TestDecisionPromptOnFreshState(t *testing.T) {
	prompt := buildDecisionPrompt(session.NewState("fresh"))

	assert.Contains(t, prompt, "none yet")
	assert.Contains(t, prompt, "interview not started")
	assert.NotContains(t, prompt, "Current draft")
}
