package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryArchive struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemoryArchive() *memoryArchive {
	return &memoryArchive{blobs: make(map[string][]byte)}
}

func (m *memoryArchive) Store(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = append([]byte(nil), data...)
	return nil
}

func (m *memoryArchive) Retrieve(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (m *memoryArchive) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryArchive) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[name]; !ok {
		return fmt.Errorf("blob %s: %w", name, ErrNotFound)
	}
	delete(m.blobs, name)
	return nil
}

func TestArchiveScan_RoundTrip(t *testing.T) {
	archive := newMemoryArchive()
	ctx := context.Background()
	scan := sampleScan(12, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC))

	name, err := ArchiveScan(ctx, archive, scan)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "scans/org-12/2026-02-03/20260203T040506"))
	assert.True(t, strings.HasSuffix(name, scan.ID+".json"))

	loaded, err := LoadSnapshot(ctx, archive, name)
	require.NoError(t, err)
	assert.Equal(t, scan.ID, loaded.ID)
	assert.Equal(t, scan.Ideas, loaded.Ideas)
	assert.Len(t, loaded.Items, len(scan.Items))

	_, err = LoadSnapshot(ctx, archive, "scans/org-12/missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPruneSnapshots(t *testing.T) {
	archive := newMemoryArchive()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var names []string
	for i := 0; i < 5; i++ {
		name, err := ArchiveScan(ctx, archive, sampleScan(1, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		names = append(names, name)
	}
	_, err := ArchiveScan(ctx, archive, sampleScan(2, base))
	require.NoError(t, err)

	deleted, err := PruneSnapshots(ctx, archive, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	left, err := archive.List(ctx, SnapshotPrefix(1))
	require.NoError(t, err)
	assert.Equal(t, names[3:], left, "the newest snapshots survive")

	other, err := archive.List(ctx, SnapshotPrefix(2))
	require.NoError(t, err)
	assert.Len(t, other, 1, "other organizations are untouched")

	deleted, err = PruneSnapshots(ctx, archive, 1, 5)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}
