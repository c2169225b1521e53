package coordinator

import (
	"fmt"

	"saga/pkg/config"
	"saga/pkg/session"
)

// Fallback selects the next action from the deterministic rule table. It is
// pure (no I/O, no randomness), always succeeds, and only emits actions from
// the closed set, so it is safe to run on any backend failure. Rules are
// checked in priority order; the interview-substance rule deliberately
// precedes the extraction rule, so a long transcript goes straight to
// drafting even when anchors were never extracted.
func Fallback(state *session.SessionState, cfg config.PipelineConfig) Decision {
	rounds := state.Rounds()

	// Evaluated biography: refine below the threshold, otherwise finish.
	if state.HasBiography() && state.Quality != nil {
		score := state.Quality.OverallScore
		if score < cfg.CompletionThreshold {
			return fallbackDecision(session.ActionRefineBiography, 0.9,
				fmt.Sprintf("biography scored %.1f, below the %.1f completion threshold", score, cfg.CompletionThreshold))
		}
		return fallbackDecision(session.ActionComplete, 0.95,
			fmt.Sprintf("quality %.1f meets the %.1f completion threshold", score, cfg.CompletionThreshold))
	}

	// Unevaluated biography: find out where it stands.
	if state.HasBiography() {
		return fallbackDecision(session.ActionEvaluateQuality, 0.88,
			"a biography exists but has not been evaluated")
	}

	// Enough material to draft: researched context or a substantial
	// transcript both qualify.
	if rounds >= cfg.MinRoundsForWrite &&
		(!state.Context.IsEmpty() || len(state.InterviewText()) > cfg.MinTextForWrite) {
		return fallbackDecision(session.ActionWriteBiography, 0.85,
			"interview material is sufficient to start drafting")
	}

	// Material worth mining but never extracted.
	if rounds >= cfg.MinRoundsForExtract && state.Anchors == nil {
		return fallbackDecision(session.ActionExtractEvents, 0.75,
			"transcript may reference datable events; extract anchors first")
	}

	// Anchors waiting on research.
	if state.Anchors != nil && state.Context.IsEmpty() {
		return fallbackDecision(session.ActionResearchHistory, 0.82,
			"anchors are extracted but historical context is missing")
	}

	// Fresh or nearly fresh session.
	if rounds < cfg.MinRoundsForExtract {
		return fallbackDecision(session.ActionContinueInterview, 0.95,
			"too little interview material; keep collecting")
	}

	return fallbackDecision(session.ActionContinueInterview, 0.6,
		"no stronger signal; gather more material")
}

func fallbackDecision(action session.ActionName, confidence float64, reasoning string) Decision {
	return Decision{
		NextAction: action,
		Reasoning:  reasoning,
		Confidence: confidence,
		Source:     SourceFallback,
	}
}
