package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// heroJourneyMaxScore is 21 items at 7 points each.
const heroJourneyMaxScore = 147

// scaleDimensions holds the hero's-journey scale in instrument order: seven
// dimensions of three items, each item scored 1-7 from the subject's
// first-person perspective.
var scaleDimensions = []struct {
	name  string
	items [3]string
}{
	{"Protagonist", [3]string{
		"I consider myself the hero/main character of my life journey",
		"In my life story, I play an important leading role",
		"I see myself as the central figure of my own life story",
	}},
	{"Shift", [3]string{
		"My life is full of adventures and new experiences",
		"I have experienced important life turning points and changes",
		"My life has many unexpected transformations",
	}},
	{"Quest", [3]string{
		"My life has clear goals and missions",
		"I know what I want to pursue in life",
		"I have a clear life direction and purpose",
	}},
	{"Allies", [3]string{
		"I have mentors and friends to guide and support me",
		"Important people have helped me in my life journey",
		"I have received guidance and support from key figures",
	}},
	{"Challenge", [3]string{
		"I have worked hard to overcome difficulties and obstacles in life",
		"I have faced major challenges and tests",
		"I have conquered important difficulties on my life path",
	}},
	{"Transformation", [3]string{
		"I have become a better version of myself",
		"Through life experiences, I have gained important growth and change",
		"I have undergone profound personal transformation in my life journey",
	}},
	{"Legacy", [3]string{
		"I will have a lasting positive impact on others",
		"My life experiences will inspire and help others",
		"I will leave a meaningful life legacy",
	}},
}

// HeroJourneyEvaluator grades a finished biography against the
// hero's-journey narrative scale. It runs once per session, after the
// coordinator loop completes, and its result is informational: a failure
// leaves the session's scale result empty without affecting anything else.
type HeroJourneyEvaluator struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewHeroJourneyEvaluator creates the scale evaluator.
func NewHeroJourneyEvaluator(client llm.LLMClient, logger *logx.Logger) *HeroJourneyEvaluator {
	if logger == nil {
		logger = logx.NewLogger("evaluator")
	}
	return &HeroJourneyEvaluator{client: client, logger: logger}
}

// Evaluate scores the current biography on the scale and stores the result
// on the session. No biography or a failed backend leaves the session
// unchanged.
func (e *HeroJourneyEvaluator) Evaluate(ctx context.Context, state *session.SessionState) error {
	if !state.HasBiography() {
		e.logger.Warn("scale evaluation requested with no biography, skipping")
		return nil
	}

	prompt := heroJourneyPrompt(state.SubjectName, state.CurrentBiography())
	req := llm.NewCompletionRequest(llm.NewUserMessage(prompt))
	req.MaxTokens = 1024

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn("scale evaluation failed, leaving no scale result: %v", err)
		return nil
	}

	result, err := parseHeroJourney(resp.Content)
	if err != nil {
		e.logger.Warn("scale evaluation returned unparseable output: %v", err)
		return nil
	}

	state.HeroJourney = result
	e.logger.Info("hero's-journey scale: %d/%d (%.1f%%)", result.TotalScore, result.MaxScore, result.Percentage)
	return nil
}

// heroJourneyPrompt renders the scale items in instrument order with
// continuous numbering.
func heroJourneyPrompt(name, biography string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Score the narrative scale below from %s's first-person perspective, based only on this biography.\n\n", name)
	b.WriteString("Biography:\n")
	b.WriteString(biography)
	b.WriteString("\n\nScale items (1-7 points, 1=strongly disagree, 7=strongly agree):\n")

	n := 0
	for _, dim := range scaleDimensions {
		fmt.Fprintf(&b, "\n%s:\n", dim.name)
		for _, item := range dim.items {
			n++
			fmt.Fprintf(&b, "%d. %s\n", n, item)
		}
	}

	b.WriteString(`
Return strict JSON only, in exactly this shape:
{
  "dimension_scores": {
    "Protagonist": [item1, item2, item3],
    "Shift": [item4, item5, item6],
    "Quest": [item7, item8, item9],
    "Allies": [item10, item11, item12],
    "Challenge": [item13, item14, item15],
    "Transformation": [item16, item17, item18],
    "Legacy": [item19, item20, item21]
  },
  "summary": "two or three sentences interpreting the profile"
}`)
	return b.String()
}

type heroJourneyWire struct {
	DimensionScores map[string][]int `json:"dimension_scores"`
	Summary         string           `json:"summary"`
}

// parseHeroJourney decodes the model's per-item scores and derives the
// dimension sums, total, and percentage itself rather than trusting the
// model's arithmetic. Every dimension must be present with exactly three
// items; individual item scores are clamped into [1,7].
func parseHeroJourney(raw string) (*session.HeroJourneyResult, error) {
	span := utils.FirstJSONObject(raw)
	if span == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var wire heroJourneyWire
	if err := json.Unmarshal([]byte(span), &wire); err != nil {
		return nil, fmt.Errorf("failed to decode scale scores: %w", err)
	}

	result := &session.HeroJourneyResult{
		DimensionScores: make(map[string]int, len(scaleDimensions)),
		MaxScore:        heroJourneyMaxScore,
		Summary:         strings.TrimSpace(wire.Summary),
	}

	total := 0
	for _, dim := range scaleDimensions {
		items, ok := wire.DimensionScores[dim.name]
		if !ok || len(items) != len(dim.items) {
			return nil, fmt.Errorf("scale output missing dimension %s", dim.name)
		}
		sum := 0
		for _, item := range items {
			sum += clampItem(item)
		}
		result.DimensionScores[dim.name] = sum
		total += sum
	}

	result.TotalScore = total
	result.Percentage = float64(total) / float64(heroJourneyMaxScore) * 100
	return result, nil
}

func clampItem(score int) int {
	if score < 1 {
		return 1
	}
	if score > 7 {
		return 7
	}
	return score
}
