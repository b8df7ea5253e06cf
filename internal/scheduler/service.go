package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/signalforge/signalforge/internal/metrics"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/scanning"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/sirupsen/logrus"
)

// Interval presets in hours
const (
	IntervalOff    = 0
	IntervalDaily  = 24
	IntervalWeekly = 168
)

// Scanner runs one scan for an organization
type Scanner interface {
	RunScan(ctx context.Context, orgID int64) (*scanning.Result, error)
}

// Service ticks on a fixed spec and runs the scans that are due
type Service struct {
	spec    string
	store   storage.ScanStore
	scanner Scanner
	metrics *metrics.Metrics
	cron    *cron.Cron
	now     func() time.Time
	cancel  context.CancelFunc
}

// NewService creates a new scheduler service. spec is a standard cron
// expression or descriptor such as "@every 15m".
func NewService(spec string, store storage.ScanStore, scanner Scanner, m *metrics.Metrics) *Service {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	return &Service{
		spec:    spec,
		store:   store,
		scanner: scanner,
		metrics: m,
		cron:    cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		now:     time.Now,
	}
}

// Start begins ticking. Cancelling ctx or calling Stop ends the loop.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	_, err := s.cron.AddFunc(s.spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.RunDueScans(ctx)
	})
	if err != nil {
		s.cancel()
		return fmt.Errorf("invalid scheduler spec %q: %w", s.spec, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with spec %s", s.spec)
	return nil
}

// Stop cancels a running tick and waits for it to return.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

// IsDue reports whether a schedule should run at now. Manual-only schedules
// are never due; schedules that never ran are always due.
func IsDue(state models.ScheduleState, now time.Time) bool {
	if state.IntervalHours <= 0 {
		return false
	}
	if state.LastRun == nil {
		return true
	}
	return now.Sub(*state.LastRun) >= time.Duration(state.IntervalHours)*time.Hour
}

// RunDueScans runs every due organization in turn and returns how many
// scans succeeded. A failed scan leaves last_run untouched so the next tick
// retries it.
func (s *Service) RunDueScans(ctx context.Context) int {
	now := s.now()
	s.metrics.Tick(now)

	states, err := s.store.ListSchedules(ctx)
	if err != nil {
		logrus.Errorf("Failed to list schedules: %v", err)
		return 0
	}

	ran := 0
	for _, state := range states {
		if ctx.Err() != nil {
			logrus.Info("Scheduler tick cancelled")
			return ran
		}
		if !IsDue(state, now) {
			continue
		}

		log := logrus.WithField("org_id", state.OrgID)
		log.Info("Starting scheduled scan")
		res, err := s.scanner.RunScan(ctx, state.OrgID)
		if err != nil {
			s.metrics.SchedulerRun("failed")
			log.Errorf("Scheduled scan failed: %v", err)
			continue
		}
		s.metrics.SchedulerRun("success")

		if err := s.store.MarkScheduleRun(ctx, state.OrgID, res.CreatedAt); err != nil {
			log.Errorf("Failed to record scheduled run: %v", err)
			continue
		}
		ran++
	}
	return ran
}

// ParseInterval accepts off, daily, weekly or a whole number of hours.
func ParseInterval(value string) (int, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "off", "manual":
		return IntervalOff, nil
	case "daily":
		return IntervalDaily, nil
	case "weekly":
		return IntervalWeekly, nil
	default:
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 0 {
			return 0, fmt.Errorf("invalid interval %q: use off, daily, weekly or hours", value)
		}
		return hours, nil
	}
}

// DescribeInterval renders hours back into its preset name when there is one.
func DescribeInterval(hours int) string {
	switch hours {
	case IntervalOff:
		return "off"
	case IntervalDaily:
		return "daily"
	case IntervalWeekly:
		return "weekly"
	default:
		return fmt.Sprintf("every %dh", hours)
	}
}
