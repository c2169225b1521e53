package evaluator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/session"
)

const rubricJSON = `{
  "overall_score": 7.8,
  "dimension_scores": {
    "content_completeness": 8.0,
    "emotional_depth": 7.0,
    "literary_quality": 7.5,
    "historical_integration": 8.5,
    "narrative_coherence": 8.0,
    "personal_growth": 7.5,
    "authenticity": 8.0,
    "uniqueness": 7.0
  },
  "meets_standard": true,
  "feedback": "Strong historical grounding; the emotional register stays thin.",
  "major_issues": ["emotions told rather than shown"]
}`

func draftedState() *session.SessionState {
	state := session.NewState("Chen Jianguo")
	state.AddBiographyVersion("I was born in Harbin in 1954...", false, session.StrategyInitialDraft)
	return state
}

func newEvaluateExecutor(client llm.LLMClient) *EvaluateExecutor {
	return NewEvaluateExecutor(client, *config.DefaultConfig().Pipeline, nil)
}

// TestEvaluateStoresRubricResult verifies a parseable evaluation lands on the
// session with the configured standard applied over the model's own claim.
func TestEvaluateStoresRubricResult(t *testing.T) {
	mock := llm.NewMockClientWithContent("Here is my assessment:\n" + rubricJSON)
	exec := newEvaluateExecutor(mock)

	state := draftedState()
	require.NoError(t, exec.Execute(context.Background(), state))

	assert.Equal(t, session.PhaseQualityAssessment, state.Phase)
	require.NotNil(t, state.Quality)
	assert.InDelta(t, 7.8, state.Quality.OverallScore, 0.001)
	assert.InDelta(t, 7.0, state.Quality.DimensionScores["emotional_depth"], 0.001)
	assert.Equal(t, "Strong historical grounding; the emotional register stays thin.", state.Quality.Feedback)
	assert.Equal(t, []string{"emotions told rather than shown"}, state.Quality.MajorIssues)
	// 7.8 is below the 9.0 publication standard regardless of the model
	// claiming meets_standard true.
	assert.False(t, state.Quality.MeetsStandard)
}

// TestEvaluateMeetsStandardAtConfiguredBar verifies the meets-standard flag
// flips exactly at the configured publication standard.
func TestEvaluateMeetsStandardAtConfiguredBar(t *testing.T) {
	mock := llm.NewMockClientWithContent(`{"overall_score": 9.2, "dimension_scores": {}, "feedback": "ready", "major_issues": []}`)
	exec := newEvaluateExecutor(mock)

	state := draftedState()
	require.NoError(t, exec.Execute(context.Background(), state))
	assert.True(t, state.Quality.MeetsStandard)
}

// TestEvaluateRequiresBiography verifies evaluating before any draft exists
// is a warned no-op that never calls the backend.
func TestEvaluateRequiresBiography(t *testing.T) {
	mock := llm.NewMockClientWithContent("should not be used")
	exec := newEvaluateExecutor(mock)

	state := session.NewState("Chen Jianguo")
	require.NoError(t, exec.Execute(context.Background(), state))

	assert.Nil(t, state.Quality)
	assert.Equal(t, 0, mock.CallCount())
	assert.NotEqual(t, session.PhaseQualityAssessment, state.Phase)
}

// TestEvaluateBackendFailureStoresSentinel verifies a failed evaluation
// stores the zero-score sentinel instead of leaving a stale result.
func TestEvaluateBackendFailureStoresSentinel(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{fmt.Errorf("backend down")})
	exec := newEvaluateExecutor(mock)

	state := draftedState()
	state.Quality = &session.QualityResult{OverallScore: 8.0, MeetsStandard: false}

	require.NoError(t, exec.Execute(context.Background(), state))
	require.NotNil(t, state.Quality)
	assert.Zero(t, state.Quality.OverallScore)
	assert.False(t, state.Quality.MeetsStandard)
	assert.Contains(t, state.Quality.Feedback, "evaluation failed")
}

// TestEvaluateGarbageOutputStoresSentinel verifies unparseable output is
// treated the same as a backend failure.
func TestEvaluateGarbageOutputStoresSentinel(t *testing.T) {
	mock := llm.NewMockClientWithContent("the draft felt quite moving overall")
	exec := newEvaluateExecutor(mock)

	state := draftedState()
	require.NoError(t, exec.Execute(context.Background(), state))

	require.NotNil(t, state.Quality)
	assert.Zero(t, state.Quality.OverallScore)
	assert.False(t, state.Quality.MeetsStandard)
}

// TestEvaluatePromptCarriesBiography verifies the rubric prompt quotes the
// current version, not an earlier one.
func TestEvaluatePromptCarriesBiography(t *testing.T) {
	mock := llm.NewMockClientWithContent(rubricJSON)
	exec := newEvaluateExecutor(mock)

	state := draftedState()
	state.AddBiographyVersion("REFINED TEXT.", true, session.StrategyComprehensiveRewrite)

	require.NoError(t, exec.Execute(context.Background(), state))

	prompt := mock.Calls()[0].Messages[0].Content
	assert.Contains(t, prompt, "REFINED TEXT.")
	assert.Contains(t, prompt, "content_completeness")
	assert.Contains(t, prompt, "Score strictly.")
}

// TestParseEvaluationClampsScores verifies out-of-range scores are clamped
// into the 0-10 band.
func TestParseEvaluationClampsScores(t *testing.T) {
	result, err := parseEvaluation(`{"overall_score": 14.0, "dimension_scores": {"authenticity": -2.0}}`)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, result.OverallScore, 0.001)
	assert.InDelta(t, 0.0, result.DimensionScores["authenticity"], 0.001)
}
