package storage

import (
	"context"
	"errors"
	"time"

	"github.com/signalforge/signalforge/internal/models"
)

// ErrNotFound is returned when a scan does not exist for the organization
var ErrNotFound = errors.New("not found")

// ScanStore defines the contract for scan, configuration and schedule persistence
type ScanStore interface {
	GetScanConfiguration(ctx context.Context, orgID int64) (*models.ScanConfiguration, error)
	SaveScanConfiguration(ctx context.Context, orgID int64, cfg *models.ScanConfiguration) error

	GetSchedule(ctx context.Context, orgID int64) (*models.ScheduleState, error)
	SetScheduleInterval(ctx context.Context, orgID int64, hours int) (*models.ScheduleState, error)
	ListSchedules(ctx context.Context) ([]models.ScheduleState, error)
	MarkScheduleRun(ctx context.Context, orgID int64, at time.Time) error

	SaveScan(ctx context.Context, scan *models.Scan) error
	GetScan(ctx context.Context, orgID int64, scanID string) (*models.Scan, error)
	LatestScans(ctx context.Context, orgID int64, limit int) ([]models.Scan, error)
	PreviousScan(ctx context.Context, orgID int64, scanID string) (*models.Scan, error)
}

// Archive defines the contract for storing scan snapshots outside the database
type Archive interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}
