package sources

import (
	"context"
	"strings"
	"time"

	"github.com/signalforge/signalforge/internal/ideas"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/signalforge/signalforge/internal/patterns"
)

// RequestTimeout bounds every provider call. Calls are never retried.
const RequestTimeout = 20 * time.Second

const (
	userAgent     = "SignalForge/0.1 (contact: local)"
	titleLength   = 80
	snippetLength = 220
)

// Source interface defines the contract for all data sources
type Source interface {
	GetName() string
	IsEnabled(cfg *models.ScanConfiguration) bool
	FetchSignals(ctx context.Context, cfg *models.ScanConfiguration) (*Result, error)
}

// Result is what one source produced for one scan
type Result struct {
	Source     string
	Items      []models.MatchedItem
	Ideas      *ideas.Accumulator
	RateLimits []models.RateLimit
	Fetched    int
	Matched    int
}

func newResult(source string) *Result {
	return &Result{
		Source: source,
		Ideas:  ideas.NewAccumulator(source),
	}
}

// match classifies text and, when it carries a signal, records the item
// built by fill. It reports whether the item was kept.
func (r *Result) match(text string, requireAppRequest bool, fill func(*models.MatchedItem)) bool {
	categories := patterns.Classify(text)
	if requireAppRequest && !patterns.Has(categories, models.CategoryAppRequest) {
		return false
	}
	if len(categories) == 0 {
		return false
	}

	item := models.MatchedItem{
		Source:       r.Source,
		Categories:   categories,
		WillingToPay: patterns.Has(categories, models.CategoryPay),
		IdeaKey:      ideas.Key(text),
		Snippet:      snippet(text),
	}
	fill(&item)

	r.Items = append(r.Items, item)
	r.Ideas.Add(item)
	r.Matched++
	return true
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func snippet(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(truncate(text, snippetLength), "\n", " "))
}

func titleFromText(text string) string {
	if len([]rune(text)) > titleLength {
		return truncate(text, titleLength) + "..."
	}
	return text
}

func cutoffFor(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

func parseTimestamp(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
