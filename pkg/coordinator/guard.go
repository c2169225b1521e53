package coordinator

import (
	"fmt"

	"saga/pkg/session"
)

// Guard enforces forward progress. When the proposed action already ran in
// the last two iterations, executing it again would make a third consecutive
// repeat, so the proposal is replaced from a progress-biased table. The
// replacement is always a different action than the proposal: even when the
// table's first match is the repeated action itself, later entries are
// consulted until one differs, so the executed history can never contain a
// triple repeat.
func Guard(proposed Decision, state *session.SessionState) Decision {
	last := state.LastActions(2)
	if len(last) < 2 || last[0] != proposed.NextAction || last[1] != proposed.NextAction {
		return proposed
	}

	type override struct {
		applies bool
		action  session.ActionName
		conf    float64
		move    string
	}
	overrides := []override{
		{state.HasBiography() && state.Quality == nil,
			session.ActionEvaluateQuality, 0.9, "evaluating the existing draft"},
		{state.Anchors != nil && !state.Context.IsEmpty() && !state.HasBiography(),
			session.ActionWriteBiography, 0.9, "writing from the researched context"},
		{state.Anchors != nil && state.Context.IsEmpty(),
			session.ActionWriteBiography, 0.85, "skipping research and writing from the interview"},
		{len(state.Dialogue) < 5,
			session.ActionContinueInterview, 0.8, "returning to the interview"},
		{true,
			session.ActionWriteBiography, 0.75, "forcing progress toward a draft"},
		// Reached only when every applicable entry above proposes the
		// repeated action itself.
		{true,
			session.ActionContinueInterview, 0.7, "collecting more material instead"},
	}

	for _, o := range overrides {
		if !o.applies || o.action == proposed.NextAction {
			continue
		}
		return Decision{
			NextAction: o.action,
			Reasoning: fmt.Sprintf("detected repetition: %s was executed twice in a row and was proposed again; overriding by %s",
				proposed.NextAction, o.move),
			Confidence: o.conf,
			Source:     SourceGuard,
		}
	}

	// Unreachable: the table always contains two distinct actions with
	// unconditional entries.
	return proposed
}
