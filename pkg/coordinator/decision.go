// Package coordinator drives a biography session: each iteration it selects
// the next pipeline action (model-proposed with a deterministic rule
// fallback), guards against repetition, and dispatches to the registered
// executor until the session completes or the iteration cap is reached.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// Source records which mechanism produced a decision.
type Source string

const (
	// SourceModel marks a decision parsed from backend output.
	SourceModel Source = "model"

	// SourceFallback marks a decision from the deterministic rule table,
	// used when the backend fails or returns unusable output.
	SourceFallback Source = "fallback"

	// SourceGuard marks a decision rewritten by the loop guard.
	SourceGuard Source = "guard"
)

// Decision is one iteration's selected action.
type Decision struct {
	NextAction session.ActionName `json:"next_action"`
	Reasoning  string             `json:"reasoning"`
	Confidence float64            `json:"confidence"`
	Source     Source             `json:"source"`
}

// Engine selects the next action for a session. It asks the decision backend
// for a strict-JSON choice and falls back to the rule table on any failure,
// so Decide never errors and never returns an action outside the closed set.
type Engine struct {
	client llm.LLMClient
	cfg    config.PipelineConfig
	logger *logx.Logger
}

// NewEngine creates a decision engine. The client should already carry the
// caller's retry/fallback middleware.
func NewEngine(client llm.LLMClient, cfg config.PipelineConfig, logger *logx.Logger) *Engine {
	if logger == nil {
		logger = logx.NewLogger("coordinator")
	}
	return &Engine{client: client, cfg: cfg, logger: logger}
}

const decisionSystemPrompt = `You are the coordinator of a biography-writing pipeline. Each turn you pick exactly one next action for the session.

Available actions:

1. continue_interview — ask the subject one more question. Use while material is thin or important life stages are uncovered.
2. end_interview — mark the interview finished. Use when the main life stages are covered (typically 5-10 rounds) or the subject wants to stop.
3. extract_events — mine the transcript for dates, places, and historical events, producing research queries. One pass is normally enough.
4. research_history — run web research over the extracted anchors and fold the findings into the historical context. One pass is normally enough; repeat only when new events surfaced.
5. write_biography — draft the biography from the interview and any historical context. Needs substantial interview material; historical context helps but is not required.
6. evaluate_quality — score the current draft against the quality rubric. Requires a draft.
7. refine_biography — rewrite the draft guided by the latest evaluation. Requires an evaluation; use when the score is below the completion threshold.
8. complete — finish the session. Use when the evaluated quality meets the threshold or further refinement has stopped helping.

Rules:
- Never select the action that was just executed twice in a row; move the pipeline forward instead.
- extract_events, then research_history, then write_biography is the natural progression once the interview has substance.
- After evaluate_quality, choose refine_biography or complete, not another evaluation.
- Prefer more interviewing when in doubt: thin material makes weak biographies.

Respond with ONLY a JSON object, no prose and no markdown fences:
{"next_action": "<one of the eight action names>", "reasoning": "<why this action now>", "confidence": <0.0-1.0>}`

// Decide selects the next action for the session. Backend or parse failures
// are logged as warnings and answered from the fallback rule table.
func (e *Engine) Decide(ctx context.Context, state *session.SessionState) Decision {
	req := llm.NewCompletionRequest(
		llm.NewSystemMessage(decisionSystemPrompt),
		llm.NewUserMessage(buildDecisionPrompt(state)),
	)
	req.MaxTokens = 512

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("decision backend failed, using rule fallback: %v", err)
		return Fallback(state, e.cfg)
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		e.logger.Warn("decision output unusable, using rule fallback: %v", err)
		return Fallback(state, e.cfg)
	}
	return decision
}

// decisionWire is the strict response schema expected from the backend.
// Confidence is a pointer so a missing field is distinguishable from 0.
type decisionWire struct {
	NextAction string   `json:"next_action"`
	Reasoning  string   `json:"reasoning"`
	Confidence *float64 `json:"confidence"`
}

// parseDecision extracts and validates a decision from raw backend output.
// Markdown fences are tolerated; everything else must be strict JSON with all
// three fields present and the action inside the closed set.
func parseDecision(raw string) (Decision, error) {
	text := stripJSONFences(raw)

	var wire decisionWire
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return Decision{}, fmt.Errorf("decision is not valid JSON: %w", err)
	}

	action, err := session.ParseAction(wire.NextAction)
	if err != nil {
		return Decision{}, fmt.Errorf("decision action invalid: %w", err)
	}
	if strings.TrimSpace(wire.Reasoning) == "" {
		return Decision{}, fmt.Errorf("decision is missing reasoning")
	}
	if wire.Confidence == nil {
		return Decision{}, fmt.Errorf("decision is missing confidence")
	}
	if *wire.Confidence < 0 || *wire.Confidence > 1 {
		return Decision{}, fmt.Errorf("decision confidence %.2f out of range", *wire.Confidence)
	}

	return Decision{
		NextAction: action,
		Reasoning:  strings.TrimSpace(wire.Reasoning),
		Confidence: *wire.Confidence,
		Source:     SourceModel,
	}, nil
}

// stripJSONFences removes a surrounding markdown code fence if the backend
// wrapped its JSON in one despite instructions.
func stripJSONFences(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// Prompt bounding limits. The snapshot must stay small no matter how long
// the session has run.
const (
	promptActionWindow  = 10
	promptReasonChars   = 50
	promptDialogueChars = 800
	promptBioChars      = 300
	promptLastSaidChars = 100
)

// buildDecisionPrompt renders a bounded snapshot of the session for the
// decision backend.
func buildDecisionPrompt(state *session.SessionState) string {
	var b strings.Builder

	interviewText := state.InterviewText()

	fmt.Fprintf(&b, "## Session snapshot\n")
	fmt.Fprintf(&b, "Phase: %s\n", state.Phase)
	fmt.Fprintf(&b, "Interview rounds: %d (%d characters of transcript)\n", state.Rounds(), len(interviewText))
	fmt.Fprintf(&b, "Biography versions: %d\n", len(state.Biographies))
	if state.Quality != nil {
		fmt.Fprintf(&b, "Quality evaluated: yes (%.1f/10, meets standard: %t)\n", state.Quality.OverallScore, state.Quality.MeetsStandard)
	} else {
		b.WriteString("Quality evaluated: no\n")
	}
	fmt.Fprintf(&b, "Events extracted: %t\n", state.Anchors != nil)
	fmt.Fprintf(&b, "Historical context researched: %t\n\n", !state.Context.IsEmpty())

	b.WriteString("## Recent actions (most recent last)\n")
	recent := state.ActionHistory
	if len(recent) > promptActionWindow {
		recent = recent[len(recent)-promptActionWindow:]
	}
	if len(recent) == 0 {
		b.WriteString("none yet\n")
	}
	counts := make(map[session.ActionName]int)
	for _, rec := range recent {
		counts[rec.Action]++
		fmt.Fprintf(&b, "iteration %d: %s - %s\n", rec.Iteration, rec.Action, utils.Head(rec.Reasoning, promptReasonChars))
	}
	if len(counts) > 0 {
		b.WriteString("frequency: ")
		first := true
		for _, action := range session.AllActions {
			if counts[action] == 0 {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s x%d", action, counts[action])
			first = false
		}
		b.WriteString("\n")
	}
	if repeated, ok := repeatedTail(recent); ok {
		fmt.Fprintf(&b, "WARNING: %s has run three times in a row; you must choose something else.\n", repeated)
	}

	b.WriteString("\n## Conversation tail\n")
	if interviewText == "" {
		b.WriteString("interview not started\n")
	} else {
		b.WriteString(utils.Tail(interviewText, promptDialogueChars))
		b.WriteString("\n")
	}
	if len(state.Dialogue) > 0 {
		last := state.Dialogue[len(state.Dialogue)-1]
		fmt.Fprintf(&b, "Last utterance (%s): %s\n", last.Speaker, utils.Head(last.Content, promptLastSaidChars))
	}

	if bio := state.CurrentBiography(); bio != "" {
		b.WriteString("\n## Current draft (preview)\n")
		b.WriteString(utils.Head(bio, promptBioChars))
		b.WriteString("\n")
	}

	b.WriteString("\nSelect the next action.")
	return b.String()
}

// repeatedTail reports whether the last three records share one action.
func repeatedTail(records []session.ActionRecord) (session.ActionName, bool) {
	if len(records) < 3 {
		return "", false
	}
	tail := records[len(records)-3:]
	if tail[0].Action == tail[1].Action && tail[1].Action == tail[2].Action {
		return tail[0].Action, true
	}
	return "", false
}
