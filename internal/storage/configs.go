package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
)

// GetScanConfiguration returns the organization's configuration, creating the
// defaults and a manual-only schedule on first access.
func (s *SQLiteStore) GetScanConfiguration(ctx context.Context, orgID int64) (*models.ScanConfiguration, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx, "SELECT settings FROM scan_configs WHERE org_id = ?", orgID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return s.createDefaults(ctx, orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading scan configuration for org %d: %w", orgID, err)
	}

	var cfg models.ScanConfiguration
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decoding scan configuration for org %d: %w", orgID, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

func (s *SQLiteStore) createDefaults(ctx context.Context, orgID int64) (*models.ScanConfiguration, error) {
	cfg := s.defaults.Clone()
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encoding default configuration: %w", err)
	}
	now := toNanos(s.now())

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin defaults for org %d: %w", orgID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO scan_configs (org_id, settings, updated_at) VALUES (?, ?, ?)",
		orgID, string(raw), now,
	); err != nil {
		return nil, fmt.Errorf("creating default configuration for org %d: %w", orgID, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO schedules (org_id, interval_hours, updated_at) VALUES (?, 0, ?)",
		orgID, now,
	); err != nil {
		return nil, fmt.Errorf("creating default schedule for org %d: %w", orgID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit defaults for org %d: %w", orgID, err)
	}

	logrus.WithField("org_id", orgID).Info("Created default scan configuration")
	return &cfg, nil
}

// SaveScanConfiguration replaces the organization's configuration.
func (s *SQLiteStore) SaveScanConfiguration(ctx context.Context, orgID int64, cfg *models.ScanConfiguration) error {
	normalized := cfg.Clone()
	normalized.Normalize()

	raw, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("encoding scan configuration: %w", err)
	}

	_, err = s.conn.ExecContext(ctx,
		`INSERT INTO scan_configs (org_id, settings, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET settings = excluded.settings, updated_at = excluded.updated_at`,
		orgID, string(raw), toNanos(s.now()),
	)
	if err != nil {
		return fmt.Errorf("saving scan configuration for org %d: %w", orgID, err)
	}
	return nil
}

// GetSchedule returns the organization's schedule, manual-only if none was set.
func (s *SQLiteStore) GetSchedule(ctx context.Context, orgID int64) (*models.ScheduleState, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT org_id, interval_hours, last_run, updated_at FROM schedules WHERE org_id = ?", orgID)
	state, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ScheduleState{OrgID: orgID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading schedule for org %d: %w", orgID, err)
	}
	return state, nil
}

// SetScheduleInterval sets the polling interval in hours. 0 disables scheduling.
func (s *SQLiteStore) SetScheduleInterval(ctx context.Context, orgID int64, hours int) (*models.ScheduleState, error) {
	if hours < 0 {
		return nil, fmt.Errorf("schedule interval must not be negative, got %d", hours)
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO schedules (org_id, interval_hours, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET interval_hours = excluded.interval_hours, updated_at = excluded.updated_at`,
		orgID, hours, toNanos(s.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("saving schedule for org %d: %w", orgID, err)
	}
	return s.GetSchedule(ctx, orgID)
}

// ListSchedules returns every stored schedule ordered by organization.
func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]models.ScheduleState, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT org_id, interval_hours, last_run, updated_at FROM schedules ORDER BY org_id")
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	defer rows.Close()

	var states []models.ScheduleState
	for rows.Next() {
		state, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("reading schedule row: %w", err)
		}
		states = append(states, *state)
	}
	return states, rows.Err()
}

// MarkScheduleRun records a successful run.
func (s *SQLiteStore) MarkScheduleRun(ctx context.Context, orgID int64, at time.Time) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO schedules (org_id, interval_hours, last_run, updated_at) VALUES (?, 0, ?, ?)
		ON CONFLICT(org_id) DO UPDATE SET last_run = excluded.last_run, updated_at = excluded.updated_at`,
		orgID, toNanos(at), toNanos(s.now()),
	)
	if err != nil {
		return fmt.Errorf("marking schedule run for org %d: %w", orgID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*models.ScheduleState, error) {
	var state models.ScheduleState
	var lastRun sql.NullInt64
	var updatedAt int64
	if err := row.Scan(&state.OrgID, &state.IntervalHours, &lastRun, &updatedAt); err != nil {
		return nil, err
	}
	if lastRun.Valid {
		t := fromNanos(lastRun.Int64)
		state.LastRun = &t
	}
	state.UpdatedAt = fromNanos(updatedAt)
	return &state, nil
}
