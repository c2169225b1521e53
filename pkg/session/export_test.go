package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/logx"
)

// buildPopulatedState returns a session exercising every export section.
func buildPopulatedState() *SessionState {
	state := NewState("Li Hua")
	state.Phase = PhaseRefinement

	state.AppendTurn(SpeakerInterviewer, "Where did you grow up?")
	state.AppendTurn(SpeakerSubject, "A small town outside Chengdu.")
	state.AppendTurn(SpeakerInterviewer, "What did your parents do?")
	state.AppendTurn(SpeakerSubject, "They worked at the textile mill.")

	state.Anchors = &AnchorSet{
		Temporal:         []string{"1965", "1978"},
		Location:         []string{"Chengdu"},
		HistoricalEvents: []string{"university entrance exam restored"},
		SocialPhenomena:  []string{"state-owned factory life"},
		SearchQueries: []SearchQuery{
			{Query: "Chengdu textile industry 1970s", Period: "1970s", Location: "Chengdu", Focus: "industry"},
		},
	}
	state.Context.Merge(HistoricalContext{
		EventsByKey:   map[string]string{"1970s_chengdu_industry": "mill expansion"},
		SocialContext: map[string]string{"1978": "reform and opening"},
		SearchResults: []QueryResults{
			{Query: "Chengdu textile industry 1970s", Results: []SearchHit{
				{Title: "Mills of the southwest", URL: "https://example.org/mills", Snippet: "…"},
			}},
		},
	})

	state.AddBiographyVersion("first draft", false, StrategyInitialDraft)
	state.AddBiographyVersion("refined draft", true, StrategyComprehensiveRewrite)
	state.Quality = &QualityResult{
		OverallScore:    8.7,
		DimensionScores: map[string]float64{"emotional_depth": 8.5, "authenticity": 9.0},
		MeetsStandard:   false,
		Feedback:        "strong voice, thin on historical texture",
		MajorIssues:     []string{"chapter three rushes the move to Beijing"},
	}
	state.HeroJourney = &HeroJourneyResult{
		DimensionScores: map[string]int{"call_to_adventure": 17, "transformation": 19},
		TotalScore:      121,
		MaxScore:        147,
		Percentage:      82.3,
		Summary:         "clear departure and return arcs",
	}

	state.RecordAction(1, ActionContinueInterview, "opening question")
	state.RecordAction(2, ActionExtractEvents, "enough material")
	state.RecordAction(3, ActionWriteBiography, "context ready")

	state.Ring.Add(logx.Entry{Timestamp: "2026-01-02T03:04:05.000Z", Component: "coordinator", Level: "INFO", Message: "iteration 1"})
	state.Ring.Add(logx.Entry{Timestamp: "2026-01-02T03:04:06.000Z", Component: "writer", Level: "WARN", Message: "short context"})

	return state
}

// TestExportDocumentShape verifies the canonical sections and the derived
// convenience fields.
func TestExportDocumentShape(t *testing.T) {
	state := buildPopulatedState()
	doc := state.Export()

	assert.Equal(t, state.SessionID, doc.Metadata.SessionID)
	assert.Equal(t, "Li Hua", doc.Metadata.SubjectName)
	assert.False(t, doc.Metadata.ExportTime.IsZero())

	assert.Len(t, doc.Interview.Dialogue, 4)
	assert.Equal(t, state.InterviewText(), doc.Interview.Content)

	assert.Equal(t, "refined draft", doc.Biography.FinalVersion)
	assert.Len(t, doc.Biography.AllVersions, 2)

	require.NotNil(t, doc.Evaluation.Quality)
	assert.InDelta(t, 8.7, doc.Evaluation.Quality.OverallScore, 1e-9)
	require.NotNil(t, doc.Evaluation.HeroJourney)
	assert.Equal(t, 147, doc.Evaluation.HeroJourney.MaxScore)

	require.NotNil(t, doc.Research.ExtractedAnchors)
	assert.Len(t, doc.Workflow.ActionHistory, 3)
	assert.Equal(t, PhaseRefinement, doc.Workflow.CurrentPhase)
	assert.Len(t, doc.Logs, 2)
}

// TestExportImportRoundTrip verifies a session survives export and re-import
// with nothing lost: re-exporting the imported state yields the same document.
func TestExportImportRoundTrip(t *testing.T) {
	state := buildPopulatedState()

	data, err := state.MarshalExport()
	require.NoError(t, err)

	restored, err := UnmarshalExport(data)
	require.NoError(t, err)

	assert.Equal(t, state.SessionID, restored.SessionID)
	assert.Equal(t, state.Rounds(), restored.Rounds())
	assert.Equal(t, state.CurrentBiography(), restored.CurrentBiography())
	assert.Equal(t, state.InterviewText(), restored.InterviewText())
	require.NotNil(t, restored.Ring)
	assert.Equal(t, 2, restored.Ring.Len())

	// Re-export and compare documents as JSON; only the export timestamp may
	// differ between the two passes.
	again := restored.Export()
	again.Metadata.ExportTime = state.Export().Metadata.ExportTime
	first := state.Export()
	first.Metadata.ExportTime = again.Metadata.ExportTime

	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	againJSON, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(againJSON))
}

// TestImportEmptySession verifies a minimal fresh session round-trips and
// comes back normalized (allocated collections, active status).
func TestImportEmptySession(t *testing.T) {
	state := NewState("nobody")

	data, err := state.MarshalExport()
	require.NoError(t, err)

	restored, err := UnmarshalExport(data)
	require.NoError(t, err)

	assert.Equal(t, StatusActive, restored.Status)
	assert.NotNil(t, restored.Dialogue)
	assert.NotNil(t, restored.Biographies)
	assert.NotNil(t, restored.ActionHistory)
	assert.NotNil(t, restored.Context.EventsByKey)
	assert.Nil(t, restored.Anchors, "extraction never ran, so anchors stay nil")
	assert.Nil(t, restored.Quality)
}

// TestUnmarshalExportRejectsGarbage verifies malformed documents are refused
// rather than imported half-empty.
func TestUnmarshalExportRejectsGarbage(t *testing.T) {
	_, err := UnmarshalExport([]byte("not json at all"))
	require.Error(t, err)

	// Structurally valid JSON but an invalid session (gapped versions).
	doc := buildPopulatedState().Export()
	doc.Biography.AllVersions[1].Version = 7
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	_, err = UnmarshalExport(data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}
