package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/signalforge/signalforge/internal/models"
)

// SnapshotPrefix is the archive prefix holding every snapshot of an organization.
func SnapshotPrefix(orgID int64) string {
	return fmt.Sprintf("scans/org-%d/", orgID)
}

// SnapshotName places a scan under its organization and creation date.
// Names of one organization sort chronologically.
func SnapshotName(scan *models.Scan) string {
	created := scan.CreatedAt.UTC()
	return fmt.Sprintf("%s%s/%s-%s.json",
		SnapshotPrefix(scan.OrgID), created.Format("2006-01-02"), created.Format(snapshotStamp), scan.ID)
}

const snapshotStamp = "20060102T150405.000000000Z"

// ArchiveScan stores the full scan as indented JSON and returns its name.
func ArchiveScan(ctx context.Context, archive Archive, scan *models.Scan) (string, error) {
	data, err := json.MarshalIndent(scan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding scan %s: %w", scan.ID, err)
	}
	name := SnapshotName(scan)
	if err := archive.Store(ctx, name, data); err != nil {
		return "", err
	}
	return name, nil
}

// LoadSnapshot reads back an archived scan.
func LoadSnapshot(ctx context.Context, archive Archive, name string) (*models.Scan, error) {
	data, err := archive.Retrieve(ctx, name)
	if err != nil {
		return nil, err
	}
	var scan models.Scan
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", name, err)
	}
	return &scan, nil
}

// PruneSnapshots deletes all but the newest keep snapshots of an organization.
func PruneSnapshots(ctx context.Context, archive Archive, orgID int64, keep int) (int, error) {
	names, err := archive.List(ctx, SnapshotPrefix(orgID))
	if err != nil {
		return 0, err
	}
	if len(names) <= keep {
		return 0, nil
	}
	sort.Strings(names)

	deleted := 0
	for _, name := range names[:len(names)-keep] {
		if err := archive.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
