package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists scans, scan configurations and schedules in SQLite
type SQLiteStore struct {
	conn     *sql.DB
	path     string
	defaults models.ScanConfiguration
	now      func() time.Time
}

// Ensure SQLiteStore implements ScanStore
var _ ScanStore = (*SQLiteStore)(nil)

// Open creates or opens a SQLite database at the given path and migrates it.
// defaults is the configuration given to organizations seen for the first time.
func Open(dbPath string, defaults models.ScanConfiguration) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	// connection-scoped pragmas go in the DSN so every pooled connection gets them
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logrus.Debugf("Opened scan database at %s", dbPath)
	store := NewSQLiteStore(conn, defaults)
	store.path = dbPath
	return store, nil
}

// NewSQLiteStore wraps an already migrated connection.
func NewSQLiteStore(conn *sql.DB, defaults models.ScanConfiguration) *SQLiteStore {
	return &SQLiteStore{
		conn:     conn,
		defaults: defaults.Clone(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
