package session

import (
	"fmt"
	"strings"
)

// ActionName identifies one pipeline action the coordinator can select.
// The set is closed: every decision, whether model-proposed or produced by
// the fallback rules, must map onto one of these values before it executes.
type ActionName string

const (
	// ActionContinueInterview runs one interviewer turn and one subject turn.
	ActionContinueInterview ActionName = "continue_interview"

	// ActionEndInterview marks the interview phase finished without
	// collecting further dialogue.
	ActionEndInterview ActionName = "end_interview"

	// ActionExtractEvents mines the transcript for temporal/location anchors
	// and targeted search queries.
	ActionExtractEvents ActionName = "extract_events"

	// ActionResearchHistory runs web research over the extracted anchors and
	// merges the findings into the historical context.
	ActionResearchHistory ActionName = "research_history"

	// ActionWriteBiography drafts a new biography version from the interview
	// and any historical context.
	ActionWriteBiography ActionName = "write_biography"

	// ActionEvaluateQuality scores the current biography against the rubric.
	ActionEvaluateQuality ActionName = "evaluate_quality"

	// ActionRefineBiography rewrites the current biography guided by the
	// latest evaluation, then re-evaluates.
	ActionRefineBiography ActionName = "refine_biography"

	// ActionComplete terminates the coordinator loop.
	ActionComplete ActionName = "complete"
)

// AllActions lists every member of the closed action set, in pipeline order.
//
//nolint:gochecknoglobals // Static registry, never mutated.
var AllActions = []ActionName{
	ActionContinueInterview,
	ActionEndInterview,
	ActionExtractEvents,
	ActionResearchHistory,
	ActionWriteBiography,
	ActionEvaluateQuality,
	ActionRefineBiography,
	ActionComplete,
}

// ValidateAction reports whether s names a member of the closed action set.
func ValidateAction(s string) (ActionName, bool) {
	switch ActionName(s) {
	case ActionContinueInterview, ActionEndInterview, ActionExtractEvents,
		ActionResearchHistory, ActionWriteBiography, ActionEvaluateQuality,
		ActionRefineBiography, ActionComplete:
		return ActionName(s), true
	default:
		return "", false
	}
}

// ParseAction parses a string into an ActionName. Leading/trailing space and
// case differences are tolerated because the value usually arrives from model
// output; anything outside the closed set is rejected.
func ParseAction(s string) (ActionName, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if action, ok := ValidateAction(normalized); ok {
		return action, nil
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// String returns the string representation of the action.
func (a ActionName) String() string {
	return string(a)
}

// IsTerminal reports whether the action ends the coordinator loop.
func (a ActionName) IsTerminal() bool {
	return a == ActionComplete
}
