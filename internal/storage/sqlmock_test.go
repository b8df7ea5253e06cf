package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveScan_RollsBackOnItemFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db, models.ScanConfiguration{})
	scan := sampleScan(1, time.Now().UTC())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").
		WithArgs(scan.ID, int64(1), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO scan_sources").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO scan_sources").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO scan_results").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	err = store.SaveScan(context.Background(), scan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestSaveScan_CommitFailurePropagates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db, models.ScanConfiguration{})
	scan := &models.Scan{ID: "scan-1", OrgID: 2, CreatedAt: time.Now().UTC()}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").
		WithArgs("scan-1", int64(2), sqlmock.AnyArg(), "[]").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err = store.SaveScan(context.Background(), scan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit scan scan-1")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}

func TestGetScanConfiguration_CreatesDefaultsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewSQLiteStore(db, testDefaults())

	mock.ExpectQuery("SELECT settings FROM scan_configs").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"settings"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT OR IGNORE INTO scan_configs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT OR IGNORE INTO schedules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	cfg, err := store.GetScanConfiguration(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, testDefaults().Reddit.Subreddits, cfg.Reddit.Subreddits)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet SQL expectations: %v", err)
	}
}
