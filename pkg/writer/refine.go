package writer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
)

// lowDimensionCutoff marks rubric dimensions called out by name in a
// comprehensive rewrite prompt.
const lowDimensionCutoff = 7.5

// maxIssuesInPrompt bounds how many evaluation issues a structure
// enhancement prompt repeats.
const maxIssuesInPrompt = 3

// RefineExecutor rewrites the current biography version guided by the last
// evaluation. Scores below the refinement cutoff get a comprehensive rewrite;
// anything better gets a narrative-structure enhancement. Refinement never
// runs without an evaluation to guide it.
type RefineExecutor struct {
	client llm.LLMClient
	cfg    config.PipelineConfig
	logger *logx.Logger
}

// NewRefineExecutor creates the refinement executor.
func NewRefineExecutor(client llm.LLMClient, cfg config.PipelineConfig, logger *logx.Logger) *RefineExecutor {
	if logger == nil {
		logger = logx.NewLogger("writer")
	}
	return &RefineExecutor{client: client, cfg: cfg, logger: logger}
}

// Execute appends a refined biography version. Missing evaluation or missing
// draft are precondition violations: warn and append nothing.
func (x *RefineExecutor) Execute(ctx context.Context, state *session.SessionState) error {
	if state.Quality == nil {
		x.logger.Warn("refinement requested before any evaluation, skipping")
		return nil
	}
	if !state.HasBiography() {
		x.logger.Warn("refinement requested with no biography to refine, skipping")
		return nil
	}

	state.Phase = session.PhaseRefinement

	score := state.Quality.OverallScore
	var prompt, strategy string
	if score < refinementCutoff(x.cfg) {
		prompt = comprehensivePrompt(state)
		strategy = session.StrategyComprehensiveRewrite
	} else {
		prompt = structurePrompt(state)
		strategy = session.StrategyStructureEnhancement
	}

	req := llm.NewCompletionRequest(llm.NewUserMessage(prompt))
	req.MaxTokens = draftMaxTokens
	req.Temperature = 0.7

	resp, err := x.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		x.logger.Warn("refinement failed, keeping version %d: %v", state.CurrentVersion(), err)
		return nil
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		x.logger.Warn("refinement returned empty content, keeping version %d", state.CurrentVersion())
		return nil
	}

	version := state.AddBiographyVersion(content, true, strategy)
	x.logger.Info("biography refined to version %d via %s (previous score %.1f)", version.Version, strategy, score)
	return nil
}

// comprehensivePrompt asks for a full rewrite addressing every point of the
// evaluation feedback.
func comprehensivePrompt(state *session.SessionState) string {
	quality := state.Quality
	var b strings.Builder

	b.WriteString("Comprehensively improve this personal biography using the quality assessment below.\n\n")
	b.WriteString("Original biography:\n")
	b.WriteString(state.CurrentBiography())
	b.WriteString("\n\nQuality assessment feedback:\n")
	b.WriteString(quality.Feedback)

	if len(quality.MajorIssues) > 0 {
		b.WriteString("\n\nMajor issues:\n")
		for _, issue := range quality.MajorIssues {
			fmt.Fprintf(&b, "- %s\n", issue)
		}
	}

	if low := lowDimensions(quality.DimensionScores); len(low) > 0 {
		b.WriteString("\nDimensions needing the most improvement:\n")
		for _, dim := range low {
			fmt.Fprintf(&b, "- %s: %.1f/10\n", dim, quality.DimensionScores[dim])
		}
	}

	b.WriteString(`
Improvement requirements:
1. Address each specific issue; never answer in generalities.
2. Deepen the emotional layer with more personal insight and inner experience.
3. Enrich the historical background so the era comes through.
4. Tighten the narrative structure: clear logic, clear timeline.
5. Raise the literary quality of the language.
6. Keep the first-person voice authentic; avoid over-writing.
7. Keep the content complete and coherent.

Rewrite the biography in full, 2500-3500 words.`)
	return b.String()
}

// structurePrompt asks for a targeted rework of the draft's narrative arc
// while keeping its substance.
func structurePrompt(state *session.SessionState) string {
	quality := state.Quality
	name := state.SubjectName
	var b strings.Builder

	b.WriteString("Strengthen this biography's narrative structure using the assessment below.\n\n")
	b.WriteString("Current biography:\n")
	b.WriteString(state.CurrentBiography())

	if len(quality.DimensionScores) > 0 {
		b.WriteString("\n\nAssessment scores:\n")
		for _, dim := range sortedDimensions(quality.DimensionScores) {
			fmt.Fprintf(&b, "- %s: %.1f/10\n", dim, quality.DimensionScores[dim])
		}
	}

	if len(quality.MajorIssues) > 0 {
		issues := quality.MajorIssues
		if len(issues) > maxIssuesInPrompt {
			issues = issues[:maxIssuesInPrompt]
		}
		fmt.Fprintf(&b, "\nMajor issues: %s\n", strings.Join(issues, "; "))
	}

	fmt.Fprintf(&b, `
Structural enhancement requirements:
1. Protagonist: strengthen %[1]s's agency as the main character of the life told.
2. Shift: make the turning points more distinct and meaningful.
3. Quest: clarify the goals and missions, and the pursuit behind them.
4. Allies: show the people whose support mattered and how.
5. Challenge: deepen the difficulties and the struggle through them.
6. Transformation: make the inner change visible.
7. Legacy: bring out the lasting impact on others.

Optimization requirements:
- Anchor every structural element in a concrete life event.
- Keep a clear progression from challenge through struggle to growth and legacy.
- Preserve emotional continuity and narrative tension.
- Never name the structural elements in the text.
- Keep the rewritten biography natural and fluent, never mechanical.

Rewrite the enhanced biography in full.`, name)
	return b.String()
}

// lowDimensions returns the rubric dimensions scoring below the callout
// cutoff, sorted by name.
func lowDimensions(scores map[string]float64) []string {
	var low []string
	for dim, score := range scores {
		if score < lowDimensionCutoff {
			low = append(low, dim)
		}
	}
	sort.Strings(low)
	return low
}

// sortedDimensions returns score map keys in stable order so prompts are
// deterministic for identical state.
func sortedDimensions(scores map[string]float64) []string {
	dims := make([]string, 0, len(scores))
	for dim := range scores {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	return dims
}
