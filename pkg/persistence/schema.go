package persistence

import (
	"database/sql"
	"errors"
	"fmt"
)

// CurrentSchemaVersion is bumped whenever the schema changes; Open migrates
// older databases forward one version at a time.
const CurrentSchemaVersion = 2

// initializeSchemaWithMigrations ensures the database schema is at the
// current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database: create the full current schema directly.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies migrations one version at a time, recording each
// step so an interrupted upgrade resumes where it stopped.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}
		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		// Baseline schema, created by createSchema on fresh databases.
		return nil
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds the overall_score summary column so listings can
// sort and filter by quality without decoding state JSON.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE sessions ADD COLUMN overall_score REAL",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}
	return nil
}

// createSchema creates all required tables and indices.
func createSchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	tables := []string{
		// Schema version tracking
		`CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// One row per biography session. The summary columns duplicate
		// fields inside state_json so listings never decode the blob.
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			subject_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','completed','failed')),
			phase TEXT NOT NULL DEFAULT 'starting',
			created_at DATETIME NOT NULL,
			last_active DATETIME NOT NULL,
			dialogue_turns INTEGER NOT NULL DEFAULT 0,
			biography_versions INTEGER NOT NULL DEFAULT 0,
			biography_chars INTEGER NOT NULL DEFAULT 0,
			overall_score REAL,
			state_json TEXT NOT NULL
		)`,

		// Captured log ring, one row per entry in capture order.
		`CREATE TABLE IF NOT EXISTS session_logs (
			session_id TEXT NOT NULL REFERENCES sessions(session_id),
			seq INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			component TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active)",
		"CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// getSchemaVersion returns the current schema version, zero for an empty
// database.
func getSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
