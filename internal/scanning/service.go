// Package scanning runs every enabled source for an organization, merges what
// they matched into one Scan and persists it atomically.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalforge/signalforge/internal/config"
	"github.com/signalforge/signalforge/internal/ideas"
	"github.com/signalforge/signalforge/internal/metrics"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/notifications"
	"github.com/signalforge/signalforge/internal/sources"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/signalforge/signalforge/internal/trends"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options carries the optional collaborators of a Service. Nil members are skipped.
type Options struct {
	Archive        storage.Archive
	Notifier       notifications.Notifier
	Metrics        *metrics.Metrics
	ArchiveKeep    int
	DigestTopIdeas int
	ScanTimeout    time.Duration
}

// Service handles scans across the configured sources
type Service struct {
	store   storage.ScanStore
	sources []sources.Source
	opts    Options
	now     func() time.Time
}

// Result summarizes a persisted scan for the caller that triggered it
type Result struct {
	ScanID    string                `json:"scan_id"`
	CreatedAt time.Time             `json:"created_at"`
	Matched   int                   `json:"matched"`
	Ideas     int                   `json:"ideas"`
	Warnings  []string              `json:"warnings"`
	Sources   []models.SourceReport `json:"sources"`
}

// DefaultSources builds the four adapters in models.SourceOrder.
func DefaultSources(cfg *config.Config) []sources.Source {
	return []sources.Source{
		sources.NewRedditSource(cfg.RedditClientID, cfg.RedditClientSecret, cfg.RedditUserAgent),
		sources.NewXSource(cfg.XBearerToken),
		sources.NewBlueskySource(),
		sources.NewMastodonSource(cfg.MastodonToken),
	}
}

// NewService creates a scan service. srcs are executed and merged in the given order.
func NewService(store storage.ScanStore, srcs []sources.Source, opts Options) *Service {
	if opts.DigestTopIdeas <= 0 {
		opts.DigestTopIdeas = 5
	}
	return &Service{
		store:   store,
		sources: srcs,
		opts:    opts,
		now:     time.Now,
	}
}

type outcome struct {
	attempted bool
	result    *sources.Result
	err       error
}

// RunScan executes one scan for the organization. Source failures become
// warnings; only loading the configuration or persisting the scan can fail.
func (s *Service) RunScan(ctx context.Context, orgID int64) (*Result, error) {
	start := s.now()
	log := logrus.WithField("org_id", orgID)
	log.Info("Starting scan")

	cfg, err := s.store.GetScanConfiguration(ctx, orgID)
	if err != nil {
		s.opts.Metrics.ObserveScan("failed", time.Since(start), 0)
		return nil, fmt.Errorf("loading scan configuration: %w", err)
	}

	outcomes := s.fetchAll(ctx, orgID, cfg)
	scan := s.merge(orgID, outcomes)

	if err := s.store.SaveScan(ctx, scan); err != nil {
		s.opts.Metrics.ObserveScan("failed", time.Since(start), 0)
		log.Errorf("Failed to persist scan: %v", err)
		return nil, fmt.Errorf("saving scan: %w", err)
	}
	s.opts.Metrics.ObserveScan("success", time.Since(start), len(scan.Ideas))

	log.WithFields(logrus.Fields{
		"scan_id":  scan.ID,
		"matched":  len(scan.Items),
		"ideas":    len(scan.Ideas),
		"warnings": len(scan.Warnings),
	}).Infof("Scan completed in %v", time.Since(start))

	s.archive(ctx, scan)
	s.notify(ctx, cfg, scan)

	return &Result{
		ScanID:    scan.ID,
		CreatedAt: scan.CreatedAt,
		Matched:   len(scan.Items),
		Ideas:     len(scan.Ideas),
		Warnings:  scan.Warnings,
		Sources:   scan.Sources,
	}, nil
}

// TriggerScan runs a scan on demand and stamps the schedule's last run.
func (s *Service) TriggerScan(ctx context.Context, orgID int64) (*Result, error) {
	res, err := s.RunScan(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkScheduleRun(ctx, orgID, res.CreatedAt); err != nil {
		logrus.WithField("org_id", orgID).Warnf("Failed to record manual run: %v", err)
	}
	return res, nil
}

// fetchAll runs the enabled adapters concurrently. The scan timeout bounds
// this phase only; persistence uses the caller's context.
func (s *Service) fetchAll(ctx context.Context, orgID int64, cfg *models.ScanConfiguration) []outcome {
	fetchCtx := ctx
	if s.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, s.opts.ScanTimeout)
		defer cancel()
	}

	outcomes := make([]outcome, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		if !src.IsEnabled(cfg) {
			logrus.WithField("org_id", orgID).Debugf("Skipping %s, not enabled", src.GetName())
			continue
		}
		srcCfg := cfg.Clone()
		g.Go(func() error {
			result, err := fetchOne(fetchCtx, src, &srcCfg)
			outcomes[i] = outcome{attempted: true, result: result, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// fetchOne is the failure boundary around a single adapter.
func fetchOne(ctx context.Context, src sources.Source, cfg *models.ScanConfiguration) (result *sources.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &sources.Error{Provider: src.GetName(), Kind: sources.KindProvider, Detail: fmt.Sprintf("adapter panic: %v", r)}
		}
	}()

	result, err = src.FetchSignals(ctx, cfg)
	if err == nil && result == nil {
		err = &sources.Error{Provider: src.GetName(), Kind: sources.KindMalformedResponse, Detail: "adapter returned no result"}
	}
	return result, err
}

// merge folds the outcomes in source order so sample selection and item
// order do not depend on completion order.
func (s *Service) merge(orgID int64, outcomes []outcome) *models.Scan {
	scan := &models.Scan{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		CreatedAt: s.now().UTC(),
		Sources:   make([]models.SourceReport, 0, len(s.sources)),
		Warnings:  []string{},
		Items:     []models.MatchedItem{},
	}
	acc := ideas.NewAccumulator("")

	for i, src := range s.sources {
		name := src.GetName()
		o := outcomes[i]
		report := models.SourceReport{Source: name, Attempted: o.attempted}

		switch {
		case !o.attempted:
		case o.err != nil:
			report.Failed = true
			scan.Warnings = append(scan.Warnings, sources.Warning(name, o.err))
			s.opts.Metrics.SourceFailed(name, string(sources.KindOf(o.err)))
			logrus.WithFields(logrus.Fields{"org_id": orgID, "source": name}).Warnf("Source failed: %v", o.err)
		default:
			report.Fetched = o.result.Fetched
			report.Matched = len(o.result.Items)
			report.RateLimits = o.result.RateLimits
			scan.Items = append(scan.Items, o.result.Items...)
			if o.result.Ideas != nil {
				acc.Merge(o.result.Ideas)
			}
			s.opts.Metrics.ObserveSource(name, report.Fetched, report.Matched)
			logrus.WithFields(logrus.Fields{"org_id": orgID, "source": name}).
				Infof("Fetched %d items, matched %d", report.Fetched, report.Matched)
		}
		scan.Sources = append(scan.Sources, report)
	}

	scan.Ideas = acc.Summaries()
	return scan
}

func (s *Service) archive(ctx context.Context, scan *models.Scan) {
	if s.opts.Archive == nil {
		return
	}
	log := logrus.WithFields(logrus.Fields{"org_id": scan.OrgID, "scan_id": scan.ID})

	name, err := storage.ArchiveScan(ctx, s.opts.Archive, scan)
	if err != nil {
		log.Errorf("Failed to archive scan: %v", err)
		return
	}
	log.Debugf("Archived scan as %s", name)

	if s.opts.ArchiveKeep > 0 {
		deleted, err := storage.PruneSnapshots(ctx, s.opts.Archive, scan.OrgID, s.opts.ArchiveKeep)
		if err != nil {
			log.Warnf("Failed to prune snapshots: %v", err)
		} else if deleted > 0 {
			log.Infof("Pruned %d old snapshots", deleted)
		}
	}
}

func (s *Service) notify(ctx context.Context, cfg *models.ScanConfiguration, scan *models.Scan) {
	if s.opts.Notifier == nil {
		return
	}
	digest, err := s.buildDigest(ctx, cfg, scan)
	if err != nil {
		logrus.WithField("scan_id", scan.ID).Errorf("Failed to build digest: %v", err)
		return
	}
	if err := s.opts.Notifier.SendDigest(ctx, digest); err != nil {
		logrus.WithField("scan_id", scan.ID).Errorf("Failed to send digest: %v", err)
	}
}

func (s *Service) buildDigest(ctx context.Context, cfg *models.ScanConfiguration, scan *models.Scan) (*models.Digest, error) {
	previous, err := s.previousIdeas(ctx, scan.OrgID, scan.ID)
	if err != nil {
		return nil, err
	}

	enriched := trends.Enrich(scan.Ideas, cfg.LookbackDays(), previous)
	trends.Sort(enriched, trends.SortMentions)
	if len(enriched) > s.opts.DigestTopIdeas {
		enriched = enriched[:s.opts.DigestTopIdeas]
	}

	digest := &models.Digest{
		OrgID:       scan.OrgID,
		ScanID:      scan.ID,
		GeneratedAt: scan.CreatedAt,
		Matched:     len(scan.Items),
		IdeaCount:   len(scan.Ideas),
		Sources:     scan.Sources,
		Warnings:    scan.Warnings,
	}
	for _, idea := range enriched {
		digest.TopIdeas = append(digest.TopIdeas, models.DigestIdea{
			IdeaKey:     idea.IdeaKey,
			Mentions:    idea.Mentions,
			PayMentions: idea.PayMentions,
			PayRatio:    idea.PayRatio,
			Signal:      string(idea.Signal),
			Momentum:    string(idea.Momentum),
			Brief:       idea.Brief,
			SampleURL:   idea.SampleURL,
		})
	}
	return digest, nil
}

// previousIdeas returns nil when the scan is the organization's first.
func (s *Service) previousIdeas(ctx context.Context, orgID int64, scanID string) ([]models.IdeaSummary, error) {
	prev, err := s.store.PreviousScan(ctx, orgID, scanID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading previous scan: %w", err)
	}
	return prev.Ideas, nil
}
