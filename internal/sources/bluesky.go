package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultBlueskyBaseURL is the public AppView used when none is configured
	DefaultBlueskyBaseURL = "https://public.api.bsky.app"

	blueskyMaxLimit = 100
)

// BlueskySource searches public Bluesky posts. No credentials are needed.
type BlueskySource struct {
	client *resty.Client
}

type blueskySearchResponse struct {
	Posts []blueskyPost `json:"posts"`
}

type blueskyPost struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	IndexedAt   string `json:"indexedAt"`
	LikeCount   int    `json:"likeCount"`
	RepostCount int    `json:"repostCount"`
	ReplyCount  int    `json:"replyCount"`
}

// NewBlueskySource creates a new Bluesky source
func NewBlueskySource() *BlueskySource {
	client := resty.New().
		SetTimeout(RequestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &BlueskySource{client: client}
}

func (b *BlueskySource) GetName() string {
	return models.SourceBluesky
}

func (b *BlueskySource) IsEnabled(cfg *models.ScanConfiguration) bool {
	return cfg.Bluesky.Enabled && len(cfg.Bluesky.Queries) > 0
}

func (b *BlueskySource) FetchSignals(ctx context.Context, cfg *models.ScanConfiguration) (*Result, error) {
	settings := cfg.Bluesky
	baseURL := strings.TrimRight(settings.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBlueskyBaseURL
	}

	result := newResult(models.SourceBluesky)
	var cutoff time.Time
	if settings.SinceDays > 0 {
		cutoff = cutoffFor(time.Now(), settings.SinceDays)
	}

	for _, query := range settings.Queries {
		posts, limits, err := b.searchPosts(ctx, baseURL, query, settings.PostLimit)
		if err != nil {
			return nil, err
		}
		result.RateLimits = append(result.RateLimits, limits)
		bucket := models.Bucket{Kind: models.BucketBlueskyQuery, Name: query}

		for _, post := range posts {
			text := post.Record.Text
			if text == "" {
				continue
			}
			created, ok := parseTimestamp(post.Record.CreatedAt)
			if !ok {
				created, ok = parseTimestamp(post.IndexedAt)
			}
			if ok && created.Before(cutoff) {
				continue
			}
			result.Fetched++

			id := post.CID
			if id == "" {
				id = post.URI
			}
			link := BlueskyPostURL(post.URI, post.Author.Handle)
			result.match(text, false, func(item *models.MatchedItem) {
				item.Bucket = bucket
				item.Type = models.ItemPost
				item.ItemID = id
				item.CreatedAt = created
				item.Score = post.LikeCount + post.RepostCount + post.ReplyCount
				item.Title = titleFromText(text)
				item.URL = link
				item.Permalink = link
			})
		}
	}

	logrus.Infof("Bluesky: fetched %d items, matched %d", result.Fetched, result.Matched)
	return result, nil
}

func (b *BlueskySource) searchPosts(ctx context.Context, baseURL, query string, limit int) ([]blueskyPost, models.RateLimit, error) {
	if limit <= 0 {
		limit = blueskyMaxLimit
	}
	rateLimit := models.RateLimit{Query: query}

	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     query,
			"limit": strconv.Itoa(minInt(limit, blueskyMaxLimit)),
			"sort":  "latest",
		}).
		Get(baseURL + "/xrpc/app.bsky.feed.searchPosts")
	if err != nil {
		return nil, rateLimit, requestError(models.SourceBluesky, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, rateLimit, statusError(models.SourceBluesky, resp)
	}

	rateLimit = headerRateLimit(query, resp, "ratelimit-")

	var payload blueskySearchResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, rateLimit, decodeError(models.SourceBluesky, err)
	}
	return payload.Posts, rateLimit, nil
}

// BlueskyPostURL turns an at:// post URI into its bsky.app page, falling
// back to the URI itself.
func BlueskyPostURL(uri, handle string) string {
	if uri != "" && handle != "" && strings.Contains(uri, "/app.bsky.feed.post/") {
		rkey := uri[strings.LastIndex(uri, "/")+1:]
		return "https://bsky.app/profile/" + handle + "/post/" + rkey
	}
	return uri
}

// headerRateLimit reads <prefix>limit, <prefix>remaining and <prefix>reset.
func headerRateLimit(query string, resp *resty.Response, prefix string) models.RateLimit {
	h := resp.Header()
	return models.RateLimit{
		Query:     query,
		Limit:     h.Get(prefix + "limit"),
		Remaining: h.Get(prefix + "remaining"),
		Reset:     h.Get(prefix + "reset"),
	}
}
