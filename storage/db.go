package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type DB struct {
	conn    *sql.DB
	session string
}

// Open opens the history database at path and initializes the schema.
// Each Open starts a new session id that tags every trigger saved through it.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode so the status server can read while the loop writes
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{conn: conn, session: uuid.NewString()}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Session returns the id of the current daemon run
func (db *DB) Session() string {
	return db.session
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the database schema
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS triggers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session TEXT NOT NULL,
		timestamp DATETIME NOT NULL,

		-- What fired
		binding TEXT NOT NULL,
		action TEXT NOT NULL,
		kind TEXT NOT NULL,
		device TEXT NOT NULL,
		key TEXT NOT NULL,

		-- Outcome
		duration_ms INTEGER NOT NULL,
		success BOOLEAN NOT NULL,
		error_message TEXT,
		dry_run BOOLEAN NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_triggers_timestamp ON triggers(timestamp);
	CREATE INDEX IF NOT EXISTS idx_triggers_binding ON triggers(binding);
	`

	_, err := db.conn.Exec(schema)
	return err
}
