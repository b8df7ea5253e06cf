package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func xConfig() *models.ScanConfiguration {
	return &models.ScanConfiguration{
		X: models.XSettings{
			Enabled:   true,
			Queries:   []string{"app for"},
			SinceDays: 30,
			PostLimit: 3,
			Language:  "en",
		},
	}
}

func TestXSource_FetchSignals(t *testing.T) {
	recent := time.Now().UTC().Add(-2 * time.Hour).Format(time.RFC3339)
	var queries []xRequest
	var pages int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		queries = append(queries, xRequest{
			query:      r.URL.Query().Get("query"),
			maxResults: r.URL.Query().Get("max_results"),
			startTime:  r.URL.Query().Get("start_time"),
		})
		pages++

		w.Header().Set("x-rate-limit-limit", "450")
		w.Header().Set("x-rate-limit-remaining", "448")
		w.Header().Set("x-rate-limit-reset", "1700000000")

		page := map[string]interface{}{}
		if r.URL.Query().Get("next_token") == "" {
			page["data"] = []map[string]interface{}{
				{
					"id": "1", "text": "I'd pay for an app that tracks my expenses", "created_at": recent,
					"public_metrics": map[string]int{"like_count": 4, "retweet_count": 2},
				},
				{"id": "2", "text": "Good morning everyone", "created_at": recent},
			}
			page["meta"] = map[string]string{"next_token": "abc"}
		} else {
			page["data"] = []map[string]interface{}{
				{"id": "3", "text": "Looking for a tool to plan meals", "created_at": recent},
				{"id": "4", "text": "Need an app for flashcards", "created_at": recent},
			}
			page["meta"] = map[string]string{"next_token": "def"}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	source := NewXSource("token")
	source.apiBase = server.URL

	result, err := source.FetchSignals(context.Background(), xConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, pages, "stops paging once the limit is reached")
	require.NotEmpty(t, queries)
	assert.Equal(t, "app for lang:en -is:retweet", queries[0].query)
	assert.Equal(t, "10", queries[0].maxResults, "max_results has a floor of 10")

	start, err := time.Parse(time.RFC3339, queries[0].startTime)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-7*24*time.Hour), start, time.Minute, "search window is capped at 7 days")

	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.Matched)

	first := result.Items[0]
	assert.Equal(t, models.ItemTweet, first.Type)
	assert.Equal(t, "1", first.ItemID)
	assert.Equal(t, 6, first.Score)
	assert.Equal(t, "https://x.com/i/web/status/1", first.URL)
	assert.Equal(t, first.URL, first.Permalink)
	assert.Equal(t, models.Bucket{Kind: models.BucketXQuery, Name: "app for"}, first.Bucket)
	assert.Equal(t, "query:app for", first.Bucket.Label())
	assert.ElementsMatch(t, []models.Category{models.CategoryAppRequest, models.CategoryPay}, first.Categories)
	assert.True(t, first.WillingToPay)

	require.Len(t, result.RateLimits, 1)
	assert.Equal(t, models.RateLimit{Query: "app for", Limit: "450", Remaining: "448", Reset: "1700000000"}, result.RateLimits[0])
}

type xRequest struct {
	query      string
	maxResults string
	startTime  string
}

func TestXSource_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{
			name:   "Credits depleted",
			status: http.StatusPaymentRequired,
			body:   `{"title":"CreditsDepleted","detail":"Your enrolled account does not have any credits","type":"https://api.x.com/2/problems/credits"}`,
			kind:   KindCreditsDepleted,
		},
		{
			name:   "Credits depleted with forbidden status",
			status: http.StatusForbidden,
			body:   `{"title":"Forbidden","detail":"No credits left on this project"}`,
			kind:   KindCreditsDepleted,
		},
		{
			name:   "Unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"title":"Unauthorized","detail":"Unauthorized","type":"about:blank"}`,
			kind:   KindUnauthorized,
		},
		{
			name:   "Rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"title":"Too Many Requests"}`,
			kind:   KindRateLimited,
		},
		{
			name:   "Non JSON error",
			status: http.StatusServiceUnavailable,
			body:   `upstream unavailable`,
			kind:   KindProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			source := NewXSource("token")
			source.apiBase = server.URL

			result, err := source.FetchSignals(context.Background(), xConfig())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestXSource_MissingToken(t *testing.T) {
	_, err := NewXSource("").FetchSignals(context.Background(), xConfig())
	require.Error(t, err)
	assert.Equal(t, KindMissingCredential, KindOf(err))
	assert.Equal(t, "X scan skipped: missing environment variable: X_BEARER_TOKEN", Warning(models.SourceX, err))
}

func TestXSource_SkipsTweetsOutsideWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "1", "text": "Need an app for this", "created_at": time.Now().UTC().Add(-72 * time.Hour).Format(time.RFC3339)},
				{"id": "2", "text": "Need an app for that", "created_at": time.Now().UTC().Format(time.RFC3339)},
			},
			"meta": map[string]interface{}{},
		})
	}))
	defer server.Close()

	cfg := xConfig()
	cfg.X.SinceDays = 1
	source := NewXSource("token")
	source.apiBase = server.URL

	result, err := source.FetchSignals(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "2", result.Items[0].ItemID)
}
