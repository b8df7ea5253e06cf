package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/signalforge/signalforge/internal/models"
)

// SaveScan writes the scan header, its source reports, matched items and idea
// summaries in one transaction. Nothing is visible to readers on failure.
func (s *SQLiteStore) SaveScan(ctx context.Context, scan *models.Scan) error {
	if scan.ID == "" {
		return fmt.Errorf("scan id is required")
	}
	warnings, err := json.Marshal(nonNilStrings(scan.Warnings))
	if err != nil {
		return fmt.Errorf("encoding warnings: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scan %s: %w", scan.ID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO scans (id, org_id, created_at, warnings) VALUES (?, ?, ?, ?)",
		scan.ID, scan.OrgID, toNanos(scan.CreatedAt), string(warnings),
	); err != nil {
		return fmt.Errorf("inserting scan %s: %w", scan.ID, err)
	}

	for i, report := range scan.Sources {
		limits, err := json.Marshal(report.RateLimits)
		if err != nil {
			return fmt.Errorf("encoding rate limits: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scan_sources (scan_id, position, source, attempted, failed, fetched, matched, rate_limits)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			scan.ID, i, report.Source, report.Attempted, report.Failed, report.Fetched, report.Matched, string(limits),
		); err != nil {
			return fmt.Errorf("inserting source report %s: %w", report.Source, err)
		}
	}

	for i, item := range scan.Items {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO scan_results (scan_id, position, source, bucket_kind, bucket_name, item_type, item_id,
			created_at, score, title, url, permalink, match_groups, willing_to_pay, idea_key, snippet)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scan.ID, i, item.Source, string(item.Bucket.Kind), item.Bucket.Name, string(item.Type), item.ItemID,
			toNanos(item.CreatedAt), item.Score, item.Title, item.URL, item.Permalink, item.MatchGroups(),
			item.WillingToPay, item.IdeaKey, item.Snippet,
		); err != nil {
			return fmt.Errorf("inserting matched item %s/%s: %w", item.Source, item.ItemID, err)
		}
	}

	for i, idea := range scan.Ideas {
		sources, err := json.Marshal(nonNilStrings(idea.Sources))
		if err != nil {
			return fmt.Errorf("encoding idea sources: %w", err)
		}
		buckets, err := json.Marshal(idea.Buckets)
		if err != nil {
			return fmt.Errorf("encoding idea buckets: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO idea_summaries (scan_id, idea_key, position, mentions, pay_mentions, sources, buckets,
			sample_title, sample_url) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			scan.ID, idea.IdeaKey, i, idea.Mentions, idea.PayMentions, string(sources), string(buckets),
			idea.SampleTitle, idea.SampleURL,
		); err != nil {
			return fmt.Errorf("inserting idea summary %q: %w", idea.IdeaKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scan %s: %w", scan.ID, err)
	}
	return nil
}

// GetScan loads a complete scan, items ordered by recency.
func (s *SQLiteStore) GetScan(ctx context.Context, orgID int64, scanID string) (*models.Scan, error) {
	scan, err := s.scanHeader(ctx,
		"SELECT id, org_id, created_at, warnings FROM scans WHERE org_id = ? AND id = ?", orgID, scanID)
	if err != nil {
		return nil, err
	}
	if err := s.loadSources(ctx, scan); err != nil {
		return nil, err
	}
	if err := s.loadItems(ctx, scan); err != nil {
		return nil, err
	}
	if err := s.loadIdeas(ctx, scan); err != nil {
		return nil, err
	}
	return scan, nil
}

// LatestScans lists the most recent scans, newest first, without items or ideas.
func (s *SQLiteStore) LatestScans(ctx context.Context, orgID int64, limit int) ([]models.Scan, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.conn.QueryContext(ctx,
		"SELECT id, org_id, created_at, warnings FROM scans WHERE org_id = ? ORDER BY seq DESC LIMIT ?",
		orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing scans for org %d: %w", orgID, err)
	}

	var scans []models.Scan
	for rows.Next() {
		scan, err := scanHeaderRow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		scans = append(scans, *scan)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range scans {
		if err := s.loadSources(ctx, &scans[i]); err != nil {
			return nil, err
		}
	}
	return scans, nil
}

// PreviousScan returns the scan written immediately before scanID for the same
// organization, with its idea summaries. It returns ErrNotFound when scanID is
// the first scan.
func (s *SQLiteStore) PreviousScan(ctx context.Context, orgID int64, scanID string) (*models.Scan, error) {
	scan, err := s.scanHeader(ctx,
		`SELECT id, org_id, created_at, warnings FROM scans
		WHERE org_id = ? AND seq < (SELECT seq FROM scans WHERE id = ?)
		ORDER BY seq DESC LIMIT 1`, orgID, scanID)
	if err != nil {
		return nil, err
	}
	if err := s.loadSources(ctx, scan); err != nil {
		return nil, err
	}
	if err := s.loadIdeas(ctx, scan); err != nil {
		return nil, err
	}
	return scan, nil
}

func (s *SQLiteStore) scanHeader(ctx context.Context, query string, args ...any) (*models.Scan, error) {
	scan, err := scanHeaderRow(s.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading scan: %w", err)
	}
	return scan, nil
}

func scanHeaderRow(row rowScanner) (*models.Scan, error) {
	var scan models.Scan
	var createdAt int64
	var warnings string
	if err := row.Scan(&scan.ID, &scan.OrgID, &createdAt, &warnings); err != nil {
		return nil, err
	}
	scan.CreatedAt = fromNanos(createdAt)
	if err := json.Unmarshal([]byte(warnings), &scan.Warnings); err != nil {
		return nil, fmt.Errorf("decoding warnings of scan %s: %w", scan.ID, err)
	}
	return &scan, nil
}

func (s *SQLiteStore) loadSources(ctx context.Context, scan *models.Scan) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT source, attempted, failed, fetched, matched, rate_limits
		FROM scan_sources WHERE scan_id = ? ORDER BY position`, scan.ID)
	if err != nil {
		return fmt.Errorf("reading sources of scan %s: %w", scan.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r models.SourceReport
		var limits string
		if err := rows.Scan(&r.Source, &r.Attempted, &r.Failed, &r.Fetched, &r.Matched, &limits); err != nil {
			return fmt.Errorf("reading source row: %w", err)
		}
		if err := json.Unmarshal([]byte(limits), &r.RateLimits); err != nil {
			return fmt.Errorf("decoding rate limits of %s: %w", r.Source, err)
		}
		scan.Sources = append(scan.Sources, r)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadItems(ctx context.Context, scan *models.Scan) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT source, bucket_kind, bucket_name, item_type, item_id, created_at, score, title, url, permalink,
		match_groups, willing_to_pay, idea_key, snippet
		FROM scan_results WHERE scan_id = ? ORDER BY created_at DESC, position`, scan.ID)
	if err != nil {
		return fmt.Errorf("reading items of scan %s: %w", scan.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.MatchedItem
		var kind, itemType, groups string
		var title, url, permalink, snippet sql.NullString
		var createdAt int64
		if err := rows.Scan(&item.Source, &kind, &item.Bucket.Name, &itemType, &item.ItemID, &createdAt,
			&item.Score, &title, &url, &permalink, &groups, &item.WillingToPay, &item.IdeaKey, &snippet); err != nil {
			return fmt.Errorf("reading item row: %w", err)
		}
		item.Bucket.Kind = models.BucketKind(kind)
		item.Type = models.ItemType(itemType)
		item.CreatedAt = fromNanos(createdAt)
		item.Title = title.String
		item.URL = url.String
		item.Permalink = permalink.String
		item.Snippet = snippet.String
		item.Categories = parseCategories(groups)
		scan.Items = append(scan.Items, item)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadIdeas(ctx context.Context, scan *models.Scan) error {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT idea_key, mentions, pay_mentions, sources, buckets, sample_title, sample_url
		FROM idea_summaries WHERE scan_id = ? ORDER BY position`, scan.ID)
	if err != nil {
		return fmt.Errorf("reading ideas of scan %s: %w", scan.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var idea models.IdeaSummary
		var sources, buckets string
		var title, url sql.NullString
		if err := rows.Scan(&idea.IdeaKey, &idea.Mentions, &idea.PayMentions, &sources, &buckets, &title, &url); err != nil {
			return fmt.Errorf("reading idea row: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &idea.Sources); err != nil {
			return fmt.Errorf("decoding sources of idea %q: %w", idea.IdeaKey, err)
		}
		if err := json.Unmarshal([]byte(buckets), &idea.Buckets); err != nil {
			return fmt.Errorf("decoding buckets of idea %q: %w", idea.IdeaKey, err)
		}
		idea.SampleTitle = title.String
		idea.SampleURL = url.String
		scan.Ideas = append(scan.Ideas, idea)
	}
	return rows.Err()
}

func parseCategories(groups string) []models.Category {
	if groups == "" {
		return nil
	}
	parts := strings.Split(groups, ";")
	out := make([]models.Category, 0, len(parts))
	for _, p := range parts {
		out = append(out, models.Category(p))
	}
	return out
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
