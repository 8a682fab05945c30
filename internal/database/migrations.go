package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL,
    user_id TEXT,
    role TEXT NOT NULL,
    content TEXT,
    timestamp TEXT NOT NULL,
    tool_call_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, timestamp);

CREATE TABLE IF NOT EXISTS session_classification (
    session_id TEXT PRIMARY KEY,
    primary_category TEXT NOT NULL,
    scores TEXT NOT NULL,
    processed_upto TEXT NOT NULL,
    run_at TEXT NOT NULL DEFAULT (datetime('now')),
    model TEXT NOT NULL,
    instructions_version TEXT,
    notes TEXT
);

CREATE TABLE IF NOT EXISTS message_classification (
    message_id INTEGER PRIMARY KEY,
    session_id TEXT NOT NULL,
    role TEXT NOT NULL,
    primary_category TEXT NOT NULL,
    scores TEXT NOT NULL,
    run_at TEXT NOT NULL DEFAULT (datetime('now')),
    model TEXT NOT NULL,
    instructions_version TEXT
);

CREATE INDEX IF NOT EXISTS idx_message_classification_session
    ON message_classification(session_id);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version.
func latestVersion() int {
	return migrations[len(migrations)-1].Version
}
