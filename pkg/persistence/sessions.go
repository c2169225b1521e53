package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"saga/pkg/logx"
	"saga/pkg/session"
)

// ErrSessionNotFound is returned when a requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// SessionSummary is one row of a session listing: enough to pick a session
// without loading its full state. OverallScore is nil until the session has
// been evaluated at least once.
type SessionSummary struct {
	SessionID         string
	SubjectName       string
	Status            string
	Phase             string
	CreatedAt         time.Time
	LastActive        time.Time
	DialogueTurns     int
	BiographyVersions int
	BiographyChars    int
	OverallScore      *float64
}

// SaveSession upserts the full session state plus its captured log ring.
// The log rows are replaced wholesale; the ring is small and bounded, and
// replacement keeps stored order identical to capture order.
func (s *Store) SaveSession(state *session.SessionState) error {
	data, err := state.MarshalState()
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", state.SessionID, err)
	}

	var score *float64
	if state.Quality != nil {
		v := state.Quality.OverallScore
		score = &v
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin save of session %s: %w", state.SessionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO sessions (
			session_id, subject_name, status, phase, created_at, last_active,
			dialogue_turns, biography_versions, biography_chars, overall_score, state_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			subject_name = excluded.subject_name,
			status = excluded.status,
			phase = excluded.phase,
			last_active = excluded.last_active,
			dialogue_turns = excluded.dialogue_turns,
			biography_versions = excluded.biography_versions,
			biography_chars = excluded.biography_chars,
			overall_score = excluded.overall_score,
			state_json = excluded.state_json
	`, state.SessionID, state.SubjectName, state.Status, string(state.Phase),
		state.CreatedAt, state.LastActive, len(state.Dialogue), len(state.Biographies),
		len(state.CurrentBiography()), score, string(data))
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", state.SessionID, err)
	}

	if err := replaceSessionLogs(tx, state); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit save of session %s: %w", state.SessionID, err)
	}
	return nil
}

// replaceSessionLogs swaps the stored log rows for the session's current
// ring contents inside the save transaction.
func replaceSessionLogs(tx *sql.Tx, state *session.SessionState) error {
	if _, err := tx.Exec("DELETE FROM session_logs WHERE session_id = ?", state.SessionID); err != nil {
		return fmt.Errorf("failed to clear logs for session %s: %w", state.SessionID, err)
	}
	if state.Ring == nil || state.Ring.Len() == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO session_logs (session_id, seq, timestamp, component, level, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare log insert for session %s: %w", state.SessionID, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, entry := range state.Ring.Entries() {
		if _, err := stmt.Exec(state.SessionID, i, entry.Timestamp, entry.Component, entry.Level, entry.Message); err != nil {
			return fmt.Errorf("failed to insert log %d for session %s: %w", i, state.SessionID, err)
		}
	}
	return nil
}

// LoadSession rebuilds a stored session, including its captured logs.
func (s *Store) LoadSession(sessionID string) (*session.SessionState, error) {
	var data string
	err := s.db.QueryRow("SELECT state_json FROM sessions WHERE session_id = ?", sessionID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	state, err := session.UnmarshalState([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	entries, err := s.loadSessionLogs(sessionID)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		state.Ring.Restore(entries)
	}
	return state, nil
}

func (s *Store) loadSessionLogs(sessionID string) ([]logx.Entry, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, component, level, message
		FROM session_logs
		WHERE session_id = ?
		ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load logs for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []logx.Entry
	for rows.Next() {
		var e logx.Entry
		if err := rows.Scan(&e.Timestamp, &e.Component, &e.Level, &e.Message); err != nil {
			return nil, fmt.Errorf("failed to scan log row for session %s: %w", sessionID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read logs for session %s: %w", sessionID, err)
	}
	return entries, nil
}

// ListSessions returns summaries of every stored session, most recently
// active first.
func (s *Store) ListSessions() ([]SessionSummary, error) {
	rows, err := s.db.Query(`
		SELECT session_id, subject_name, status, phase, created_at, last_active,
			dialogue_turns, biography_versions, biography_chars, overall_score
		FROM sessions
		ORDER BY last_active DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		err := rows.Scan(
			&sum.SessionID, &sum.SubjectName, &sum.Status, &sum.Phase,
			&sum.CreatedAt, &sum.LastActive, &sum.DialogueTurns,
			&sum.BiographyVersions, &sum.BiographyChars, &sum.OverallScore,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session summaries: %w", err)
	}
	return summaries, nil
}

// DeleteSession removes a session and its logs.
func (s *Store) DeleteSession(sessionID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete of session %s: %w", sessionID, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM session_logs WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete logs for session %s: %w", sessionID, err)
	}

	res, err := tx.Exec("DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", sessionID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm delete of session %s: %w", sessionID, err)
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of session %s: %w", sessionID, err)
	}
	return nil
}

// CleanupSessions deletes every session whose last activity is before
// cutoff and returns how many were removed.
func (s *Store) CleanupSessions(cutoff time.Time) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin session cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		DELETE FROM session_logs WHERE session_id IN (
			SELECT session_id FROM sessions WHERE last_active < ?
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up session logs: %w", err)
	}

	res, err := tx.Exec("DELETE FROM sessions WHERE last_active < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleaned up sessions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit session cleanup: %w", err)
	}

	if affected > 0 {
		s.logger.Info("cleaned up %d sessions last active before %s", affected, cutoff.Format(time.RFC3339))
	}
	return int(affected), nil
}
