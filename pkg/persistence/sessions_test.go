package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saga/pkg/logx"
	"saga/pkg/session"
)

// setupTestStore creates an in-memory store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// populatedState builds a session with content in every section so
// round-trip tests exercise the full aggregate.
func populatedState(t *testing.T, subject string) *session.SessionState {
	t.Helper()
	state := session.NewState(subject)
	state.AppendTurn(session.SpeakerInterviewer, "Where were you born?")
	state.AppendTurn(session.SpeakerSubject, "In Harbin, in 1954.")
	state.Anchors = &session.AnchorSet{
		Temporal: []string{"the late 1990s"},
		SearchQueries: []session.SearchQuery{
			{Query: "state enterprise layoffs", Period: "late 1990s", Location: "Harbin", Focus: "work"},
		},
	}
	state.Context.EventsByKey["late 1990s_Harbin_work"] = "The layoff wave reshaped the city."
	state.AddBiographyVersion("I was born in Harbin...", false, session.StrategyInitialDraft)
	state.Quality = &session.QualityResult{
		OverallScore:    7.2,
		DimensionScores: map[string]float64{"emotional_depth": 6.5},
		Feedback:        "solid start",
		MajorIssues:     []string{"thin middle years"},
	}
	state.RecordAction(1, session.ActionContinueInterview, "fresh session")
	state.Ring.Add(logx.Entry{Timestamp: "2026-01-02T03:04:05.000Z", Component: "coordinator", Level: "INFO", Message: "loop starting"})
	return state
}

// TestSaveLoadRoundTrip verifies a saved session loads back identical,
// including research, evaluation, action history, and captured logs.
func TestSaveLoadRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	state := populatedState(t, "Chen Jianguo")

	require.NoError(t, store.SaveSession(state))

	loaded, err := store.LoadSession(state.SessionID)
	require.NoError(t, err)

	assert.Equal(t, state.SessionID, loaded.SessionID)
	assert.Equal(t, state.SubjectName, loaded.SubjectName)
	assert.Equal(t, state.Dialogue, loaded.Dialogue)
	assert.Equal(t, state.Anchors, loaded.Anchors)
	assert.Equal(t, state.Context, loaded.Context)
	assert.Equal(t, state.Biographies, loaded.Biographies)
	assert.Equal(t, state.Quality, loaded.Quality)
	assert.Equal(t, state.ActionHistory, loaded.ActionHistory)

	require.NotNil(t, loaded.Ring)
	entries := loaded.Ring.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "loop starting", entries[0].Message)
}

// TestSaveSessionUpserts verifies saving twice keeps one row with the
// latest state.
func TestSaveSessionUpserts(t *testing.T) {
	store := setupTestStore(t)
	state := populatedState(t, "Chen Jianguo")

	require.NoError(t, store.SaveSession(state))
	state.AppendTurn(session.SpeakerInterviewer, "What came next?")
	state.Touch()
	require.NoError(t, store.SaveSession(state))

	summaries, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 3, summaries[0].DialogueTurns)
}

// TestLoadSessionNotFound verifies missing sessions surface
// ErrSessionNotFound.
func TestLoadSessionNotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.LoadSession("nope_20260101_000000_00000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestListSessionsOrderedByActivity verifies summaries come back most
// recently active first with the denormalized columns filled.
func TestListSessionsOrderedByActivity(t *testing.T) {
	store := setupTestStore(t)

	older := populatedState(t, "Li Wei")
	older.LastActive = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSession(older))

	newer := populatedState(t, "Chen Jianguo")
	newer.LastActive = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveSession(newer))

	summaries, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "Chen Jianguo", summaries[0].SubjectName)
	assert.Equal(t, "Li Wei", summaries[1].SubjectName)
	assert.Equal(t, 1, summaries[0].BiographyVersions)
	assert.Equal(t, 2, summaries[0].DialogueTurns)
	require.NotNil(t, summaries[0].OverallScore)
	assert.InDelta(t, 7.2, *summaries[0].OverallScore, 0.001)
}

// TestListSessionsScoreNilBeforeEvaluation verifies unevaluated sessions
// list with a nil score rather than a misleading zero.
func TestListSessionsScoreNilBeforeEvaluation(t *testing.T) {
	store := setupTestStore(t)

	state := session.NewState("Chen Jianguo")
	require.NoError(t, store.SaveSession(state))

	summaries, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Nil(t, summaries[0].OverallScore)
}

// TestDeleteSessionRemovesLogs verifies delete removes both the session row
// and its log rows.
func TestDeleteSessionRemovesLogs(t *testing.T) {
	store := setupTestStore(t)
	state := populatedState(t, "Chen Jianguo")
	require.NoError(t, store.SaveSession(state))

	require.NoError(t, store.DeleteSession(state.SessionID))

	_, err := store.LoadSession(state.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	var count int
	require.NoError(t, store.db.QueryRow(
		"SELECT COUNT(*) FROM session_logs WHERE session_id = ?", state.SessionID,
	).Scan(&count))
	assert.Zero(t, count)
}

// TestDeleteSessionNotFound verifies deleting a missing session reports
// ErrSessionNotFound.
func TestDeleteSessionNotFound(t *testing.T) {
	store := setupTestStore(t)
	err := store.DeleteSession("missing_20260101_000000_00000000")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestCleanupSessionsHonorsCutoff verifies cleanup removes only sessions
// last active before the cutoff.
func TestCleanupSessionsHonorsCutoff(t *testing.T) {
	store := setupTestStore(t)

	stale := populatedState(t, "Li Wei")
	stale.LastActive = time.Now().UTC().Add(-10 * 24 * time.Hour)
	require.NoError(t, store.SaveSession(stale))

	fresh := populatedState(t, "Chen Jianguo")
	require.NoError(t, store.SaveSession(fresh))

	removed, err := store.CleanupSessions(time.Now().UTC().Add(-7 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	summaries, err := store.ListSessions()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Chen Jianguo", summaries[0].SubjectName)

	_, err = store.LoadSession(stale.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// TestSchemaVersionRecorded verifies a fresh database lands on the current
// schema version.
func TestSchemaVersionRecorded(t *testing.T) {
	store := setupTestStore(t)

	version, err := getSchemaVersion(store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

// TestMigrationFromVersion1 verifies a version-1 database gains the
// overall_score column and lands on the current version.
func TestMigrationFromVersion1(t *testing.T) {
	store := setupTestStore(t)

	// Rebuild the sessions table as it looked at version 1.
	_, err := store.db.Exec("DROP TABLE sessions")
	require.NoError(t, err)
	_, err = store.db.Exec(`CREATE TABLE sessions (
		session_id TEXT PRIMARY KEY,
		subject_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		phase TEXT NOT NULL DEFAULT 'starting',
		created_at DATETIME NOT NULL,
		last_active DATETIME NOT NULL,
		dialogue_turns INTEGER NOT NULL DEFAULT 0,
		biography_versions INTEGER NOT NULL DEFAULT 0,
		biography_chars INTEGER NOT NULL DEFAULT 0,
		state_json TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = store.db.Exec("DELETE FROM schema_version")
	require.NoError(t, err)
	require.NoError(t, setSchemaVersion(store.db, 1))

	require.NoError(t, initializeSchemaWithMigrations(store.db))

	version, err := getSchemaVersion(store.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	state := populatedState(t, "Chen Jianguo")
	require.NoError(t, store.SaveSession(state))
}
