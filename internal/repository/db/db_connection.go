package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file, ensures tables exist and seeds the
// desired state with OFF on first run.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

// TimeLayout is how timestamps are stored: fixed width, so text order is time order.
const TimeLayout = "2006-01-02 15:04:05.000"

const schemaDesiredState = `
CREATE TABLE IF NOT EXISTS desired_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    value TEXT NOT NULL CHECK (value IN ('ON', 'OFF')),
    updated_at TEXT NOT NULL
);
`

const schemaSyncEvents = `
CREATE TABLE IF NOT EXISTS sync_events (
    id TEXT PRIMARY KEY,
    occurred_at TEXT NOT NULL,
    type TEXT NOT NULL,
    device_id TEXT NOT NULL,
    state TEXT NOT NULL,
    description TEXT NOT NULL
);
`

const indexSyncEventsTime = `
CREATE INDEX IF NOT EXISTS idx_sync_events_occurred_at ON sync_events (occurred_at);
`

const seedDesiredState = `
INSERT OR IGNORE INTO desired_state (id, value, updated_at) VALUES (1, 'OFF', ?);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaDesiredState,
		schemaSyncEvents,
		indexSyncEventsTime,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if _, err := tx.Exec(seedDesiredState, time.Now().UTC().Format(TimeLayout)); err != nil {
		return fmt.Errorf("seed desired state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
