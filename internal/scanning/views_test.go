package scanning

import (
	"context"
	"testing"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/storage"
	"github.com/signalforge/signalforge/internal/trends"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func storedScan() *models.Scan {
	items := []models.MatchedItem{
		matched(models.SourceReddit, "invoice reminders", "short", true),
		matched(models.SourceReddit, "invoice reminders", "much longer title", false),
		matched(models.SourceX, "invoice reminders", "medium size", false),
		matched(models.SourceX, "meal planner", "meal", false),
	}
	return &models.Scan{
		ID:    "latest",
		OrgID: 1,
		Items: items,
		Ideas: []models.IdeaSummary{
			{IdeaKey: "invoice reminders", Mentions: 3, PayMentions: 1, Sources: []string{"Reddit", "X"}},
			{IdeaKey: "meal planner", Mentions: 1, Sources: []string{"X"}},
		},
	}
}

func TestLatestIdeas_NoScans(t *testing.T) {
	store := &MockStore{}
	store.On("GetScanConfiguration", mock.Anything, int64(1)).Return(testConfig(), nil)
	store.On("LatestScans", mock.Anything, int64(1), 1).Return(nil, nil)

	view, err := NewService(store, nil, Options{}).LatestIdeas(context.Background(), 1, trends.SortMentions, trends.Filter{})
	require.NoError(t, err)
	assert.Nil(t, view.Scan)
	assert.Empty(t, view.Ideas)
	assert.Equal(t, 30, view.LookbackDays)
}

func TestLatestIdeas_ComparesWithPreviousScan(t *testing.T) {
	store := &MockStore{}
	store.On("GetScanConfiguration", mock.Anything, int64(1)).Return(testConfig(), nil)
	store.On("LatestScans", mock.Anything, int64(1), 1).Return([]models.Scan{{ID: "latest"}}, nil)
	store.On("GetScan", mock.Anything, int64(1), "latest").Return(storedScan(), nil)
	store.On("PreviousScan", mock.Anything, int64(1), "latest").Return(&models.Scan{
		ID:    "older",
		Ideas: []models.IdeaSummary{{IdeaKey: "meal planner", Mentions: 5}},
	}, nil)

	view, err := NewService(store, nil, Options{}).LatestIdeas(context.Background(), 1, trends.SortMomentum, trends.Filter{})
	require.NoError(t, err)

	assert.Equal(t, "older", view.PreviousScanID)
	require.Len(t, view.Ideas, 2)
	assert.Equal(t, "invoice reminders", view.Ideas[0].IdeaKey)
	assert.Equal(t, trends.MomentumNew, view.Ideas[0].Momentum)
	assert.Equal(t, trends.MomentumDown, view.Ideas[1].Momentum)
	assert.Nil(t, view.Scan.Items)
}

func TestScanDetail_FiltersItemsAndAttachesEvidence(t *testing.T) {
	store := &MockStore{}
	store.On("GetScanConfiguration", mock.Anything, int64(1)).Return(testConfig(), nil)
	store.On("GetScan", mock.Anything, int64(1), "latest").Return(storedScan(), nil)
	store.On("PreviousScan", mock.Anything, int64(1), "latest").Return(nil, storage.ErrNotFound)

	view, err := NewService(store, nil, Options{}).ScanDetail(context.Background(), 1, "latest",
		trends.SortMentions, trends.ItemFilter{Source: "x"})
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, "medium size", view.Items[0].Title)
	assert.Empty(t, view.PreviousScanID)

	require.Len(t, view.Ideas, 2)
	invoice := view.Ideas[0]
	assert.Equal(t, "invoice reminders", invoice.IdeaKey)
	require.Len(t, invoice.Evidence, 2)
	assert.Equal(t, len("much longer title"), invoice.Evidence[0].Score)
	assert.Equal(t, len("medium size"), invoice.Evidence[1].Score)
}

func TestScanDetail_UnknownScan(t *testing.T) {
	store := &MockStore{}
	store.On("GetScan", mock.Anything, int64(1), "missing").Return(nil, storage.ErrNotFound)

	_, err := NewService(store, nil, Options{}).ScanDetail(context.Background(), 1, "missing", trends.SortMentions, trends.ItemFilter{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
