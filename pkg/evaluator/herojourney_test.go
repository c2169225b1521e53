package evaluator

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

const scaleJSON = `{
  "dimension_scores": {
    "Protagonist": [6, 5, 6],
    "Shift": [5, 6, 4],
    "Quest": [6, 6, 5],
    "Allies": [7, 6, 6],
    "Challenge": [7, 7, 6],
    "Transformation": [6, 6, 6],
    "Legacy": [5, 5, 4]
  },
  "summary": "A working life told as steady perseverance through upheaval."
}`

// TestHeroJourneyStoresDerivedScores verifies dimension sums, total, and
// percentage are computed from the per-item scores rather than taken from
// the model.
func TestHeroJourneyStoresDerivedScores(t *testing.T) {
	mock := llm.NewMockClientWithContent(scaleJSON)
	eval := NewHeroJourneyEvaluator(mock, nil)

	state := draftedState()
	require.NoError(t, eval.Evaluate(context.Background(), state))

	require.NotNil(t, state.HeroJourney)
	result := state.HeroJourney
	assert.Equal(t, 17, result.DimensionScores["Protagonist"])
	assert.Equal(t, 20, result.DimensionScores["Challenge"])
	assert.Equal(t, 120, result.TotalScore)
	assert.Equal(t, 147, result.MaxScore)
	assert.InDelta(t, 100.0*120.0/147.0, result.Percentage, 0.001)
	assert.Equal(t, "A working life told as steady perseverance through upheaval.", result.Summary)
}

// TestHeroJourneyRequiresBiography verifies the scale never runs against an
// empty session.
func TestHeroJourneyRequiresBiography(t *testing.T) {
	mock := llm.NewMockClientWithContent(scaleJSON)
	eval := NewHeroJourneyEvaluator(mock, nil)

	state := session.NewState("Chen Jianguo")
	require.NoError(t, eval.Evaluate(context.Background(), state))

	assert.Nil(t, state.HeroJourney)
	assert.Equal(t, 0, mock.CallCount())
}

// TestHeroJourneyBackendFailureLeavesNoResult verifies the scale is strictly
// informational: failure leaves the session without a scale result and
// without an error.
func TestHeroJourneyBackendFailureLeavesNoResult(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{fmt.Errorf("backend down")})
	eval := NewHeroJourneyEvaluator(mock, nil)

	state := draftedState()
	require.NoError(t, eval.Evaluate(context.Background(), state))
	assert.Nil(t, state.HeroJourney)
}

// TestHeroJourneyRejectsIncompleteDimensions verifies a payload missing a
// dimension or an item is rejected rather than partially stored.
func TestHeroJourneyRejectsIncompleteDimensions(t *testing.T) {
	mock := llm.NewMockClientWithContent(`{"dimension_scores": {"Protagonist": [6, 5]}, "summary": "short"}`)
	eval := NewHeroJourneyEvaluator(mock, nil)

	state := draftedState()
	require.NoError(t, eval.Evaluate(context.Background(), state))
	assert.Nil(t, state.HeroJourney)
}

// TestHeroJourneyPromptNumbersAllItems verifies the prompt renders all 21
// items in instrument order with continuous numbering.
func TestHeroJourneyPromptNumbersAllItems(t *testing.T) {
	prompt := heroJourneyPrompt("Chen Jianguo", "bio text")

	assert.Contains(t, prompt, "Chen Jianguo's first-person perspective")
	assert.Contains(t, prompt, "1. I consider myself the hero/main character of my life journey")
	assert.Contains(t, prompt, "21. I will leave a meaningful life legacy")
	assert.Less(t, strings.Index(prompt, "Protagonist:"), strings.Index(prompt, "Legacy:"))
}

// TestParseHeroJourneyClampsItems verifies out-of-band item scores are
// clamped into the 1-7 range before summing.
func TestParseHeroJourneyClampsItems(t *testing.T) {
	payload := `{
  "dimension_scores": {
    "Protagonist": [9, 0, 7],
    "Shift": [1, 1, 1],
    "Quest": [1, 1, 1],
    "Allies": [1, 1, 1],
    "Challenge": [1, 1, 1],
    "Transformation": [1, 1, 1],
    "Legacy": [1, 1, 1]
  }
}`
	result, err := parseHeroJourney(payload)
	require.NoError(t, err)
	// 9 clamps to 7, 0 clamps to 1.
	assert.Equal(t, 15, result.DimensionScores["Protagonist"])
	assert.Equal(t, 15+18, result.TotalScore)
}
