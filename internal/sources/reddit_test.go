package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReddit struct {
	mu           sync.Mutex
	tokenStatus  int
	listStatus   int
	listHits     int
	moreRequests []string
	userAgents   []string
	recent       float64
	old          float64
}

func newFakeReddit() *fakeReddit {
	now := time.Now()
	return &fakeReddit{
		tokenStatus: http.StatusOK,
		listStatus:  http.StatusOK,
		recent:      float64(now.Add(-time.Hour).Unix()),
		old:         float64(now.Add(-90 * 24 * time.Hour).Unix()),
	}
}

func thing(kind string, data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"kind": kind, "data": data}
}

func listing(after string, children ...map[string]interface{}) map[string]interface{} {
	if children == nil {
		children = []map[string]interface{}{}
	}
	return map[string]interface{}{"kind": "Listing", "data": map[string]interface{}{"after": after, "children": children}}
}

func post(id, title string, created float64) map[string]interface{} {
	return thing("t3", map[string]interface{}{
		"id":          id,
		"title":       title,
		"selftext":    "",
		"url":         "https://example.com/" + id,
		"permalink":   "/r/SaaS/comments/" + id + "/",
		"score":       7,
		"created_utc": created,
	})
}

func comment(id, body string, created float64, replies interface{}) map[string]interface{} {
	return thing("t1", map[string]interface{}{
		"id":          id,
		"body":        body,
		"score":       3,
		"permalink":   "/r/SaaS/comments/p1/_/" + id + "/",
		"created_utc": created,
		"replies":     replies,
	})
}

func (f *fakeReddit) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userAgents = append(f.userAgents, r.Header.Get("User-Agent"))

	write := func(v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	switch r.URL.Path {
	case "/api/v1/access_token":
		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			write(map[string]string{"error": "invalid_client"})
			return
		}
		write(map[string]interface{}{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})

	case "/r/SaaS/new":
		f.listHits++
		w.Header().Set("x-ratelimit-used", "2")
		w.Header().Set("x-ratelimit-remaining", "598")
		w.Header().Set("x-ratelimit-reset", "300")
		if f.listStatus != http.StatusOK {
			w.WriteHeader(f.listStatus)
			_, _ = w.Write([]byte(`{"message": "Too Many Requests"}`))
			return
		}
		if r.URL.Query().Get("after") == "" {
			write(listing("t3_p2",
				post("p1", "Looking for an app that tracks invoices", f.recent),
				post("p2", "Weekly showcase thread", f.recent),
			))
			return
		}
		write(listing("",
			post("p3", "I would pay for a budgeting tool", f.recent),
			post("p4", "Is there an app for old posts", f.old),
		))

	case "/comments/p1":
		replies := listing("", comment("c2", "nice work", f.recent, ""))
		write([]interface{}{
			listing("", post("p1", "Looking for an app that tracks invoices", f.recent)),
			listing("",
				comment("c1", "Doing this by hand is so frustrating", f.recent, replies),
				thing("more", map[string]interface{}{"children": []string{"c3"}}),
			),
		})

	case "/comments/p2", "/comments/p3":
		write([]interface{}{listing(""), listing("")})

	case "/api/morechildren":
		f.moreRequests = append(f.moreRequests, r.URL.Query().Get("children"))
		write(map[string]interface{}{
			"json": map[string]interface{}{
				"errors": []interface{}{},
				"data": map[string]interface{}{
					"things": []interface{}{comment("c3", "Is there an app for this?", f.recent, "")},
				},
			},
		})

	default:
		http.NotFound(w, r)
	}
}

func newTestRedditSource(serverURL string) *RedditSource {
	source := NewRedditSource("client", "secret", "signalforge-test/1.0")
	source.apiBase = serverURL
	source.tokenURL = serverURL + "/api/v1/access_token"
	return source
}

func redditConfig() *models.ScanConfiguration {
	return &models.ScanConfiguration{
		Reddit: models.RedditSettings{
			Subreddits:      []string{"SaaS"},
			SinceDays:       30,
			PostLimit:       10,
			IncludeComments: true,
			CommentLimit:    50,
		},
	}
}

func TestRedditSource_FetchSignals(t *testing.T) {
	fake := newFakeReddit()
	server := httptest.NewServer(fake)
	defer server.Close()

	source := newTestRedditSource(server.URL)
	result, err := source.FetchSignals(context.Background(), redditConfig())
	require.NoError(t, err)

	assert.Equal(t, 2, fake.listHits, "listing is paged with the after cursor")
	assert.Equal(t, []string{"c3"}, fake.moreRequests)
	for _, ua := range fake.userAgents {
		assert.Equal(t, "signalforge-test/1.0", ua)
	}

	// p1, p2, p3 and comments c1, c2, c3; p4 is outside the window
	assert.Equal(t, 6, result.Fetched)
	assert.Equal(t, 4, result.Matched)

	byID := map[string]models.MatchedItem{}
	for _, item := range result.Items {
		byID[item.ItemID] = item
	}
	require.Contains(t, byID, "p1")
	require.Contains(t, byID, "p3")
	require.Contains(t, byID, "c1")
	require.Contains(t, byID, "c3")

	p1 := byID["p1"]
	assert.Equal(t, models.ItemSubmission, p1.Type)
	assert.Equal(t, models.Bucket{Kind: models.BucketSubreddit, Name: "SaaS"}, p1.Bucket)
	assert.Equal(t, "https://www.reddit.com/r/SaaS/comments/p1/", p1.Permalink)
	assert.Equal(t, []models.Category{models.CategoryAppRequest}, p1.Categories)

	c1 := byID["c1"]
	assert.Equal(t, models.ItemComment, c1.Type)
	assert.Equal(t, "Looking for an app that tracks invoices", c1.Title, "comments carry their submission title")
	assert.Equal(t, "https://example.com/p1", c1.URL)
	assert.Equal(t, "https://www.reddit.com/r/SaaS/comments/p1/_/c1/", c1.Permalink)
	assert.Equal(t, 3, c1.Score)

	assert.True(t, byID["p3"].WillingToPay)
	assert.Equal(t, 4, result.Ideas.Mentions())

	require.Len(t, result.RateLimits, 1)
	assert.Equal(t, models.RateLimit{Query: "SaaS", Used: "2", Remaining: "598", Reset: "300"}, result.RateLimits[0])
}

func TestRedditSource_RequireAppRequest(t *testing.T) {
	server := httptest.NewServer(newFakeReddit())
	defer server.Close()

	cfg := redditConfig()
	cfg.Reddit.RequireAppRequest = true

	result, err := newTestRedditSource(server.URL).FetchSignals(context.Background(), cfg)
	require.NoError(t, err)

	var ids []string
	for _, item := range result.Items {
		ids = append(ids, item.ItemID)
		assert.Contains(t, item.Categories, models.CategoryAppRequest)
	}
	assert.ElementsMatch(t, []string{"p1", "c3"}, ids)
	assert.Equal(t, 6, result.Fetched, "strictness filters matches, not fetches")
}

func TestRedditSource_CommentsDisabledAndLimits(t *testing.T) {
	fake := newFakeReddit()
	server := httptest.NewServer(fake)
	defer server.Close()

	cfg := redditConfig()
	cfg.Reddit.IncludeComments = false
	cfg.Reddit.PostLimit = 2

	result, err := newTestRedditSource(server.URL).FetchSignals(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.listHits, "post limit reached on the first page")
	assert.Empty(t, fake.moreRequests)
	assert.Equal(t, 2, result.Fetched)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "p1", result.Items[0].ItemID)
}

func TestRedditSource_CommentLimit(t *testing.T) {
	fake := newFakeReddit()
	server := httptest.NewServer(fake)
	defer server.Close()

	cfg := redditConfig()
	cfg.Reddit.CommentLimit = 1

	result, err := newTestRedditSource(server.URL).FetchSignals(context.Background(), cfg)
	require.NoError(t, err)

	assert.Empty(t, fake.moreRequests, "capped trees are not expanded")
	for _, item := range result.Items {
		assert.NotEqual(t, "c3", item.ItemID)
		assert.NotEqual(t, "c2", item.ItemID)
	}
}

func TestRedditSource_Errors(t *testing.T) {
	tests := []struct {
		name        string
		tokenStatus int
		listStatus  int
		kind        ErrorKind
	}{
		{"Token rejected", http.StatusUnauthorized, http.StatusOK, KindUnauthorized},
		{"Token rate limited", http.StatusTooManyRequests, http.StatusOK, KindRateLimited},
		{"Listing rate limited", http.StatusOK, http.StatusTooManyRequests, KindRateLimited},
		{"Listing forbidden", http.StatusOK, http.StatusForbidden, KindForbidden},
		{"Listing server error", http.StatusOK, http.StatusBadGateway, KindProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeReddit()
			fake.tokenStatus = tt.tokenStatus
			fake.listStatus = tt.listStatus
			server := httptest.NewServer(fake)
			defer server.Close()

			result, err := newTestRedditSource(server.URL).FetchSignals(context.Background(), redditConfig())
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.kind, KindOf(err), fmt.Sprintf("error: %v", err))
		})
	}
}

func TestRedditSource_MissingCredentials(t *testing.T) {
	source := NewRedditSource("id", "", "")
	_, err := source.FetchSignals(context.Background(), redditConfig())
	require.Error(t, err)
	assert.Equal(t, KindMissingCredential, KindOf(err))
	assert.Equal(t,
		"Reddit scan skipped: missing environment variables: REDDIT_CLIENT_SECRET, REDDIT_USER_AGENT",
		Warning(models.SourceReddit, err))
}

func TestRedditSource_MalformedListing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
			return
		}
		_, _ = w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer server.Close()

	_, err := newTestRedditSource(server.URL).FetchSignals(context.Background(), redditConfig())
	require.Error(t, err)
	assert.Equal(t, KindMalformedResponse, KindOf(err))
}
