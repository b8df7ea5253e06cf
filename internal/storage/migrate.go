package storage

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
)

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
CREATE TABLE IF NOT EXISTS scan_configs (
    org_id INTEGER PRIMARY KEY,
    settings TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schedules (
    org_id INTEGER PRIMARY KEY,
    interval_hours INTEGER NOT NULL DEFAULT 0,
    last_run INTEGER,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scans (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    org_id INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    warnings TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_scans_org_seq ON scans(org_id, seq);

CREATE TABLE IF NOT EXISTS scan_sources (
    scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    source TEXT NOT NULL,
    attempted INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    fetched INTEGER NOT NULL DEFAULT 0,
    matched INTEGER NOT NULL DEFAULT 0,
    rate_limits TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (scan_id, source)
);

CREATE TABLE IF NOT EXISTS scan_results (
    scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    source TEXT NOT NULL,
    bucket_kind TEXT NOT NULL,
    bucket_name TEXT NOT NULL,
    item_type TEXT NOT NULL,
    item_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    score INTEGER NOT NULL DEFAULT 0,
    title TEXT,
    url TEXT,
    permalink TEXT,
    match_groups TEXT NOT NULL,
    willing_to_pay INTEGER NOT NULL DEFAULT 0,
    idea_key TEXT NOT NULL,
    snippet TEXT,
    PRIMARY KEY (scan_id, position)
);

CREATE INDEX IF NOT EXISTS idx_scan_results_idea ON scan_results(scan_id, idea_key);

CREATE TABLE IF NOT EXISTS idea_summaries (
    scan_id TEXT NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
    idea_key TEXT NOT NULL,
    position INTEGER NOT NULL,
    mentions INTEGER NOT NULL,
    pay_mentions INTEGER NOT NULL,
    sources TEXT NOT NULL DEFAULT '[]',
    buckets TEXT NOT NULL DEFAULT '[]',
    sample_title TEXT,
    sample_url TEXT,
    PRIMARY KEY (scan_id, idea_key)
);
`)
			return err
		},
	},
}

func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// getSchemaVersion reads PRAGMA user_version from the database.
func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate brings the database schema up to the latest version.
// It uses PRAGMA user_version to track which migrations have been applied.
func migrate(conn *sql.DB) error {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return err
	}
	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		logrus.Infof("Applying migration %d: %s", m.Version, m.Description)

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if err := m.Up(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}

		// modernc/sqlite does not apply user_version inside a transaction
		if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			return fmt.Errorf("setting version %d: %w", m.Version, err)
		}
	}

	return nil
}
