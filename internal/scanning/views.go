package scanning

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/signalforge/signalforge/internal/trends"
)

const (
	itemViewLimit   = 200
	evidencePerIdea = 2
)

// IdeasView is the enriched idea list of the latest scan
type IdeasView struct {
	Scan           *models.Scan  `json:"scan,omitempty"`
	PreviousScanID string        `json:"previous_scan_id,omitempty"`
	LookbackDays   int           `json:"lookback_days"`
	Ideas          []trends.Idea `json:"ideas"`
}

// ScanView is one scan with enriched ideas and its filtered matched items
type ScanView struct {
	Scan           *models.Scan         `json:"scan"`
	PreviousScanID string               `json:"previous_scan_id,omitempty"`
	LookbackDays   int                  `json:"lookback_days"`
	Ideas          []trends.Idea        `json:"ideas"`
	Items          []models.MatchedItem `json:"items"`
}

// ListScans returns the newest scans of an organization with their source counters.
func (s *Service) ListScans(ctx context.Context, orgID int64, limit int) ([]models.Scan, error) {
	scans, err := s.store.LatestScans(ctx, orgID, limit)
	if err != nil {
		return nil, err
	}
	if scans == nil {
		scans = []models.Scan{}
	}
	return scans, nil
}

// LatestIdeas enriches the latest scan against the one before it. A missing
// scan yields an empty view rather than an error.
func (s *Service) LatestIdeas(ctx context.Context, orgID int64, sortKey trends.SortKey, filter trends.Filter) (*IdeasView, error) {
	lookback, err := s.lookbackDays(ctx, orgID)
	if err != nil {
		return nil, err
	}
	view := &IdeasView{LookbackDays: lookback, Ideas: []trends.Idea{}}

	latest, err := s.store.LatestScans(ctx, orgID, 1)
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return view, nil
	}

	scan, err := s.store.GetScan(ctx, orgID, latest[0].ID)
	if err != nil {
		return nil, err
	}
	prev, err := s.store.PreviousScan(ctx, orgID, scan.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("loading previous scan: %w", err)
	}

	var previous []models.IdeaSummary
	if prev != nil {
		previous = prev.Ideas
		view.PreviousScanID = prev.ID
	}

	enriched := filter.Apply(trends.Enrich(scan.Ideas, lookback, previous))
	trends.Sort(enriched, sortKey)
	view.Ideas = enriched
	view.Scan = header(scan)
	return view, nil
}

// ScanDetail enriches one scan and returns its matched items, highest score
// first. Each idea carries its best scoring items as evidence.
func (s *Service) ScanDetail(ctx context.Context, orgID int64, scanID string, sortKey trends.SortKey, filter trends.ItemFilter) (*ScanView, error) {
	scan, err := s.store.GetScan(ctx, orgID, scanID)
	if err != nil {
		return nil, err
	}
	lookback, err := s.lookbackDays(ctx, orgID)
	if err != nil {
		return nil, err
	}

	view := &ScanView{Scan: header(scan), LookbackDays: lookback}

	var previous []models.IdeaSummary
	prev, err := s.store.PreviousScan(ctx, orgID, scanID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("loading previous scan: %w", err)
	default:
		previous = prev.Ideas
		view.PreviousScanID = prev.ID
	}

	view.Ideas = trends.Filter{Source: filter.Source, Idea: filter.Idea}.Apply(trends.Enrich(scan.Ideas, lookback, previous))
	trends.Sort(view.Ideas, sortKey)
	trends.AttachEvidence(view.Ideas, trends.ItemFilter{}.Apply(scan.Items, 0), evidencePerIdea)
	view.Items = filter.Apply(scan.Items, itemViewLimit)
	return view, nil
}

func (s *Service) lookbackDays(ctx context.Context, orgID int64) (int, error) {
	cfg, err := s.store.GetScanConfiguration(ctx, orgID)
	if err != nil {
		return 0, fmt.Errorf("loading scan configuration: %w", err)
	}
	return cfg.LookbackDays(), nil
}

// header copies a scan without its items and ideas.
func header(scan *models.Scan) *models.Scan {
	h := *scan
	h.Items = nil
	h.Ideas = nil
	return &h
}
