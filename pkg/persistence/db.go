// Package persistence provides the SQLite-backed session store.
package persistence

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"saga/pkg/logx"
)

// Store wraps the session database. One Store serves the whole process;
// SQLite allows a single writer, so the connection pool is capped at one
// and concurrent batch sessions serialize their saves on it.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens the session database at dbPath, creating it if needed, and
// brings its schema up to the current version. Use ":memory:" for an
// ephemeral store.
func Open(dbPath string) (*Store, error) {
	dsn := dbPath
	if dbPath != ":memory:" {
		dsn = fmt.Sprintf(
			"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)",
			dbPath,
		)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports one writer; extra connections would only collect
	// busy timeouts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("persistence")
	logger.Info("session database ready: %s", dbPath)

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database. Call during shutdown.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
