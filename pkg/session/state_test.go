package session

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseAction verifies the closed action set accepts its members and
// rejects everything else.
func TestParseAction(t *testing.T) {
	for _, name := range AllActions {
		parsed, err := ParseAction(string(name))
		require.NoError(t, err)
		assert.Equal(t, name, parsed)
	}

	// Model output often arrives with stray whitespace or capitals.
	parsed, err := ParseAction("  Write_Biography \n")
	require.NoError(t, err)
	assert.Equal(t, ActionWriteBiography, parsed)

	for _, bad := range []string{"", "write", "interview", "write biography", "complete_session"} {
		_, err := ParseAction(bad)
		assert.Error(t, err, "expected %q to be rejected", bad)
	}
}

// TestActionIsTerminal verifies only complete terminates the loop.
func TestActionIsTerminal(t *testing.T) {
	assert.True(t, ActionComplete.IsTerminal())
	for _, name := range AllActions {
		if name == ActionComplete {
			continue
		}
		assert.False(t, name.IsTerminal(), "%s must not be terminal", name)
	}
}

// TestNewState verifies a fresh session starts empty, active, and with a
// well-formed ID.
func TestNewState(t *testing.T) {
	state := NewState("Zhang Wei")

	assert.Equal(t, "Zhang Wei", state.SubjectName)
	assert.Equal(t, StatusActive, state.Status)
	assert.Equal(t, PhaseStarting, state.Phase)
	assert.Empty(t, state.Dialogue)
	assert.Nil(t, state.Anchors)
	assert.True(t, state.Context.IsEmpty())
	assert.Empty(t, state.Biographies)
	assert.Nil(t, state.Quality)
	assert.Empty(t, state.ActionHistory)
	assert.NotNil(t, state.Ring)
	require.NoError(t, state.Validate())

	// ID embeds the sanitized subject name and a unique suffix.
	assert.True(t, strings.HasPrefix(state.SessionID, "zhang-wei_"), "got %s", state.SessionID)
	other := NewState("Zhang Wei")
	assert.NotEqual(t, state.SessionID, other.SessionID)
}

// TestRoundsCountsPairs verifies a round is one question plus one answer.
func TestRoundsCountsPairs(t *testing.T) {
	state := NewState("test")
	assert.Equal(t, 0, state.Rounds())

	state.AppendTurn(SpeakerInterviewer, "Where were you born?")
	assert.Equal(t, 0, state.Rounds(), "half a round is not a round")

	state.AppendTurn(SpeakerSubject, "In Harbin, in 1952.")
	assert.Equal(t, 1, state.Rounds())

	state.AppendTurn(SpeakerInterviewer, "What was your childhood like?")
	state.AppendTurn(SpeakerSubject, "Cold winters, mostly.")
	assert.Equal(t, 2, state.Rounds())
}

// TestInterviewTextDerivedFromDialogue verifies the transcript renders every
// turn in order and tracks later appends.
func TestInterviewTextDerivedFromDialogue(t *testing.T) {
	state := NewState("test")
	assert.Equal(t, "", state.InterviewText())

	state.AppendTurn(SpeakerInterviewer, "Where were you born?")
	state.AppendTurn(SpeakerSubject, "In Harbin.")

	text := state.InterviewText()
	assert.Equal(t, "interviewer: Where were you born?\nsubject: In Harbin.", text)

	state.AppendTurn(SpeakerInterviewer, "When?")
	assert.True(t, strings.HasSuffix(state.InterviewText(), "interviewer: When?"))
}

// TestBiographyVersionsContiguous verifies versions are appended 1-based and
// contiguous, and that refinement never rewrites history.
func TestBiographyVersionsContiguous(t *testing.T) {
	state := NewState("test")
	assert.Equal(t, "", state.CurrentBiography())
	assert.Equal(t, 0, state.CurrentVersion())

	v1 := state.AddBiographyVersion("draft one", false, StrategyInitialDraft)
	assert.Equal(t, 1, v1.Version)
	assert.False(t, v1.Refined)

	v2 := state.AddBiographyVersion("draft two", true, StrategyComprehensiveRewrite)
	assert.Equal(t, 2, v2.Version)
	assert.True(t, v2.Refined)

	v3 := state.AddBiographyVersion("draft three", true, StrategyStructureEnhancement)
	assert.Equal(t, 3, v3.Version)

	assert.Equal(t, "draft three", state.CurrentBiography())
	assert.Equal(t, 3, state.CurrentVersion())
	assert.Equal(t, "draft one", state.Biographies[0].Content, "old versions are immutable")
	require.NoError(t, state.Validate())
}

// TestValidateRejectsGappedVersions verifies Validate catches a corrupted
// version sequence.
func TestValidateRejectsGappedVersions(t *testing.T) {
	state := NewState("test")
	state.AddBiographyVersion("one", false, StrategyInitialDraft)
	state.Biographies = append(state.Biographies, BiographyVersion{
		Version:   5,
		Content:   "five",
		CreatedAt: time.Now().UTC(),
	})

	err := state.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not contiguous")
}

// TestLastActions verifies the loop-detection window returns the most recent
// executed actions, oldest first.
func TestLastActions(t *testing.T) {
	state := NewState("test")
	assert.Nil(t, state.LastActions(2))

	state.RecordAction(1, ActionContinueInterview, "warm up")
	assert.Equal(t, []ActionName{ActionContinueInterview}, state.LastActions(2))

	state.RecordAction(2, ActionContinueInterview, "more detail")
	state.RecordAction(3, ActionExtractEvents, "enough rounds")

	assert.Equal(t, []ActionName{ActionContinueInterview, ActionExtractEvents}, state.LastActions(2))
	assert.Len(t, state.LastActions(10), 3)
}

// TestHistoricalContextMerge verifies research results accumulate and newer
// findings win key conflicts.
func TestHistoricalContextMerge(t *testing.T) {
	ctx := NewHistoricalContext()

	ctx.Merge(HistoricalContext{
		EventsByKey:   map[string]string{"1960s_harbin_industry": "factory expansion"},
		SocialContext: map[string]string{"1962": "rationing"},
		SearchResults: []QueryResults{{Query: "harbin 1960s", Results: []SearchHit{{Title: "a"}}}},
	})
	ctx.Merge(HistoricalContext{
		EventsByKey: map[string]string{
			"1960s_harbin_industry": "factory expansion, rail links",
			"1970s_beijing_study":   "university reopening",
		},
		SearchResults: []QueryResults{{Query: "beijing 1970s"}},
	})

	assert.Equal(t, "factory expansion, rail links", ctx.EventsByKey["1960s_harbin_industry"])
	assert.Equal(t, "university reopening", ctx.EventsByKey["1970s_beijing_study"])
	assert.Equal(t, "rationing", ctx.SocialContext["1962"])
	assert.Len(t, ctx.SearchResults, 2)
	assert.False(t, ctx.IsEmpty())
}

// TestAnchorSetIsEmpty verifies nil and contentless sets read as empty while
// any populated field does not.
func TestAnchorSetIsEmpty(t *testing.T) {
	var nilSet *AnchorSet
	assert.True(t, nilSet.IsEmpty())
	assert.True(t, (&AnchorSet{}).IsEmpty())
	assert.False(t, (&AnchorSet{Temporal: []string{"1958"}}).IsEmpty())
	assert.False(t, (&AnchorSet{SearchQueries: []SearchQuery{{Query: "q"}}}).IsEmpty())
}
