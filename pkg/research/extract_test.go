package research

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/llm"
	"saga/pkg/session"
)

const anchorJSON = `{
  "temporal_anchors": ["the late 1990s"],
  "location_anchors": ["Harbin"],
  "historical_events": ["state enterprise reform"],
  "social_phenomena": ["the layoff wave"],
  "search_queries": [
    {"query": "Harbin state enterprise layoffs late 1990s", "period": "late 1990s", "location": "Harbin", "focus": "state enterprise layoffs"}
  ]
}`

func stateWithTranscript() *session.SessionState {
	state := session.NewState("Chen Jianguo")
	state.AppendTurn(session.SpeakerInterviewer, "What happened at the factory in the late 1990s?")
	state.AppendTurn(session.SpeakerSubject, "Half the floor was let go in 1998. Harbin was full of men like me looking for work.")
	return state
}

// TestExtractParsesAnchors verifies extraction stores the full anchor set
// from well-formed backend output and advances the phase marker.
func TestExtractParsesAnchors(t *testing.T) {
	mock := llm.NewMockClientWithContent("Here are the anchors:\n```json\n" + anchorJSON + "\n```")
	exec := NewExtractExecutor(mock, nil)

	state := stateWithTranscript()
	require.NoError(t, exec.Execute(context.Background(), state))

	assert.Equal(t, session.PhaseHistoryAnalysis, state.Phase)
	require.NotNil(t, state.Anchors)
	assert.Equal(t, []string{"the late 1990s"}, state.Anchors.Temporal)
	assert.Equal(t, []string{"Harbin"}, state.Anchors.Location)
	require.Len(t, state.Anchors.SearchQueries, 1)
	assert.Equal(t, "state enterprise layoffs", state.Anchors.SearchQueries[0].Focus)
}

// TestExtractPromptCarriesTranscript verifies the transcript is what gets
// analyzed.
func TestExtractPromptCarriesTranscript(t *testing.T) {
	mock := llm.NewMockClientWithContent(anchorJSON)
	exec := NewExtractExecutor(mock, nil)

	require.NoError(t, exec.Execute(context.Background(), stateWithTranscript()))

	calls := mock.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Messages[0].Content, "Half the floor was let go in 1998")
}

// TestExtractEmptyTranscriptStoresEmptyAnchors verifies extraction with
// nothing to analyze skips the backend entirely and stores an empty set.
func TestExtractEmptyTranscriptStoresEmptyAnchors(t *testing.T) {
	mock := llm.NewMockClientWithContent()
	exec := NewExtractExecutor(mock, nil)

	state := session.NewState("Chen Jianguo")
	require.NoError(t, exec.Execute(context.Background(), state))

	require.NotNil(t, state.Anchors)
	assert.True(t, state.Anchors.IsEmpty())
	assert.Equal(t, 0, mock.CallCount())
}

// TestExtractBackendFailureDegrades verifies a backend error yields an empty
// anchor set instead of failing the action.
func TestExtractBackendFailureDegrades(t *testing.T) {
	mock := llm.NewMockClient(nil, []error{fmt.Errorf("backend down")})
	exec := NewExtractExecutor(mock, nil)

	state := stateWithTranscript()
	require.NoError(t, exec.Execute(context.Background(), state))
	require.NotNil(t, state.Anchors)
	assert.True(t, state.Anchors.IsEmpty())
}

// TestExtractGarbageOutputDegrades verifies unparseable output also yields
// the empty anchor set.
func TestExtractGarbageOutputDegrades(t *testing.T) {
	mock := llm.NewMockClientWithContent("I could not find any anchors, sorry!")
	exec := NewExtractExecutor(mock, nil)

	state := stateWithTranscript()
	require.NoError(t, exec.Execute(context.Background(), state))
	require.NotNil(t, state.Anchors)
	assert.True(t, state.Anchors.IsEmpty())
}

// TestExtractOverwritesPreviousAnchors verifies re-running extraction
// replaces the stored set rather than merging into it.
func TestExtractOverwritesPreviousAnchors(t *testing.T) {
	mock := llm.NewMockClientWithContent(anchorJSON)
	exec := NewExtractExecutor(mock, nil)

	state := stateWithTranscript()
	state.Anchors = &session.AnchorSet{Temporal: []string{"stale period"}}

	require.NoError(t, exec.Execute(context.Background(), state))
	assert.Equal(t, []string{"the late 1990s"}, state.Anchors.Temporal)
}
