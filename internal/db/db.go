package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB holding study sessions and their interaction logs.
type DB struct {
	*sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	d := &DB{DB: sqlDB, path: path}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// OpenMemory creates an in-memory SQLite database (useful for testing).
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory database: %w", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)

	d := &DB{DB: sqlDB, path: ":memory:"}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return d, nil
}

// Path returns the database location.
func (d *DB) Path() string { return d.path }

// migrate runs all schema migrations.
func (d *DB) migrate() error {
	_, err := d.Exec(schema)
	return err
}

// schema contains the full database schema. New tables are added here.
const schema = `
CREATE TABLE IF NOT EXISTS study_sessions (
    id TEXT PRIMARY KEY,
    phase TEXT NOT NULL CHECK(phase IN ('pre_survey','task','task_feedback','free','post_survey','complete')),
    current_task INTEGER NOT NULL DEFAULT 0,
    methods TEXT NOT NULL DEFAULT '[]',
    chat TEXT NOT NULL DEFAULT '{}',
    participation_code TEXT,
    created_at DATETIME NOT NULL DEFAULT (datetime('now')),
    updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_phase ON study_sessions(phase);
CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_code ON study_sessions(participation_code)
    WHERE participation_code IS NOT NULL;

CREATE TABLE IF NOT EXISTS study_log (
    id TEXT PRIMARY KEY,
    study_id TEXT NOT NULL REFERENCES study_sessions(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    type TEXT NOT NULL CHECK(type IN ('pre_survey','task_interaction','free_exploration','post_survey')),
    task_id TEXT NOT NULL DEFAULT '',
    method TEXT NOT NULL DEFAULT '',
    payload TEXT NOT NULL DEFAULT '{}',
    timestamp DATETIME NOT NULL,
    UNIQUE(study_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_log_study ON study_log(study_id, seq);
CREATE INDEX IF NOT EXISTS idx_log_type ON study_log(type);
`
