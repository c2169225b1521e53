// Package evaluator scores biography drafts. An eight-dimension weighted
// rubric drives the refinement loop; a separate hero's-journey scale grades
// the narrative structure of the finished text once a session completes.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

const rubricPromptHeader = `Conduct a strict eight-dimension quality assessment of this personal biography.

Evaluation dimensions (10-point scale, strict scoring):

1. content_completeness (weight 15%): life stage coverage, completeness of important events.
   9-10 complete, 7-8 basically complete, 5-6 incomplete, below 5 seriously insufficient.
2. emotional_depth (weight 15%): authenticity and resonance of the emotional expression.
   9-10 deeply moving, 7-8 emotional, 5-6 flat, below 5 mechanical narration.
3. literary_quality (weight 15%): language, narrative skill, beauty of expression.
   9-10 beautiful writing, 7-8 fluent, 5-6 average, below 5 rough.
4. historical_integration (weight 15%): how deeply personal experience merges with its era.
   9-10 deep integration, 7-8 background present, 5-6 shallow, below 5 missing the era.
5. narrative_coherence (weight 10%): story structure logic, timeline clarity.
6. personal_growth (weight 15%): growth trajectory, transformation, wisdom gained.
7. authenticity (weight 10%): credibility of details, truth of feeling.
8. uniqueness (weight 5%): personal characteristics, distinct perspective.

Return strict JSON only, in exactly this shape:
{
  "overall_score": weighted overall score 1-10,
  "dimension_scores": {
    "content_completeness": score,
    "emotional_depth": score,
    "literary_quality": score,
    "historical_integration": score,
    "narrative_coherence": score,
    "personal_growth": score,
    "authenticity": score,
    "uniqueness": score
  },
  "meets_standard": true only when the biography reaches publication quality,
  "feedback": "overall assessment and the most important improvement directions",
  "major_issues": ["the most serious problems, most important first"]
}

Score strictly. A draft scoring above 8 should be rare.`

// EvaluateExecutor scores the current biography version against the rubric
// and stores the result on the session. Each evaluation overwrites the
// previous one, so the stored score always describes the current version.
// Backend or parse failures store a sentinel zero score rather than leaving
// a stale result standing.
type EvaluateExecutor struct {
	client llm.LLMClient
	cfg    config.PipelineConfig
	logger *logx.Logger
}

// NewEvaluateExecutor creates the quality evaluation executor.
func NewEvaluateExecutor(client llm.LLMClient, cfg config.PipelineConfig, logger *logx.Logger) *EvaluateExecutor {
	if logger == nil {
		logger = logx.NewLogger("evaluator")
	}
	return &EvaluateExecutor{client: client, cfg: cfg, logger: logger}
}

// Execute evaluates the current biography version. Evaluation with no
// biography is a precondition violation: warn and change nothing.
func (x *EvaluateExecutor) Execute(ctx context.Context, state *session.SessionState) error {
	if !state.HasBiography() {
		x.logger.Warn("evaluation requested with no biography, skipping")
		return nil
	}

	state.Phase = session.PhaseQualityAssessment

	prompt := fmt.Sprintf("%s\n\nBiography:\n%s", rubricPromptHeader, state.CurrentBiography())
	req := llm.NewCompletionRequest(llm.NewUserMessage(prompt))
	req.MaxTokens = 2048

	resp, err := x.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		x.logger.Warn("quality evaluation failed, storing zero score: %v", err)
		state.Quality = failedEvaluation(fmt.Sprintf("evaluation failed: %v", err))
		return nil
	}

	result, err := parseEvaluation(resp.Content)
	if err != nil {
		x.logger.Warn("quality evaluation returned unparseable output, storing zero score: %v", err)
		state.Quality = failedEvaluation("evaluation output could not be parsed")
		return nil
	}

	// The standard check is ours, not the model's: the model's own
	// meets_standard claim is ignored in favor of the configured bar.
	result.MeetsStandard = result.OverallScore >= publicationStandard(x.cfg)
	state.Quality = result

	x.logger.Info("biography version %d scored %.1f/10 (meets standard: %v)",
		state.CurrentVersion(), result.OverallScore, result.MeetsStandard)
	return nil
}

// parseEvaluation pulls the first JSON object out of raw backend output,
// decodes it, and clamps every score into [0,10].
func parseEvaluation(raw string) (*session.QualityResult, error) {
	span := utils.FirstJSONObject(raw)
	if span == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var result session.QualityResult
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluation: %w", err)
	}

	result.OverallScore = clampScore(result.OverallScore)
	for dim, score := range result.DimensionScores {
		result.DimensionScores[dim] = clampScore(score)
	}
	return &result, nil
}

// failedEvaluation is the sentinel stored when evaluation cannot complete.
// A zero score never meets any standard, so a failed evaluation can only
// hold a session in refinement, never release it.
func failedEvaluation(reason string) *session.QualityResult {
	return &session.QualityResult{
		OverallScore:    0,
		DimensionScores: map[string]float64{},
		MeetsStandard:   false,
		Feedback:        reason,
		MajorIssues:     []string{"evaluation system error"},
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

func publicationStandard(cfg config.PipelineConfig) float64 {
	if cfg.PublicationStandard > 0 {
		return cfg.PublicationStandard
	}
	return config.DefaultPublicationStandard
}
