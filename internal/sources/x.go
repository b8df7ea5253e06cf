package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	xAPIBase       = "https://api.x.com/2"
	xMaxWindowDays = 7
	xMinResults    = 10
	xMaxResults    = 100
)

// XSource queries the X recent-search endpoint
type XSource struct {
	client      *resty.Client
	bearerToken string
	apiBase     string
}

type xSearchResponse struct {
	Data []xTweet `json:"data"`
	Meta struct {
		NextToken   string `json:"next_token"`
		ResultCount int    `json:"result_count"`
	} `json:"meta"`
}

type xTweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
	} `json:"public_metrics"`
}

type xErrorPayload struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Type   string `json:"type"`
}

// NewXSource creates a new X source
func NewXSource(bearerToken string) *XSource {
	client := resty.New().
		SetTimeout(RequestTimeout).
		SetHeader("User-Agent", userAgent)

	return &XSource{
		client:      client,
		bearerToken: bearerToken,
		apiBase:     xAPIBase,
	}
}

func (x *XSource) GetName() string {
	return models.SourceX
}

func (x *XSource) IsEnabled(cfg *models.ScanConfiguration) bool {
	return cfg.X.Enabled && len(cfg.X.Queries) > 0
}

// BuildXQuery appends the language and retweet operators to a raw query.
func BuildXQuery(raw, language string, includeRetweets bool) string {
	parts := []string{strings.TrimSpace(raw)}
	if language != "" {
		parts = append(parts, "lang:"+language)
	}
	if !includeRetweets {
		parts = append(parts, "-is:retweet")
	}

	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

func (x *XSource) FetchSignals(ctx context.Context, cfg *models.ScanConfiguration) (*Result, error) {
	if x.bearerToken == "" {
		return nil, missingCredential(models.SourceX, "X_BEARER_TOKEN")
	}

	settings := cfg.X
	result := newResult(models.SourceX)
	now := time.Now().UTC()
	windowDays := clampInt(settings.SinceDays, 1, xMaxWindowDays)
	cutoff := cutoffFor(now, windowDays)

	for _, raw := range settings.Queries {
		query := BuildXQuery(raw, settings.Language, settings.IncludeRetweets)
		tweets, limits, err := x.searchRecent(ctx, query, settings.PostLimit, cutoff)
		if err != nil {
			return nil, err
		}
		limits.Query = raw
		result.RateLimits = append(result.RateLimits, limits)
		bucket := models.Bucket{Kind: models.BucketXQuery, Name: raw}

		for _, tweet := range tweets {
			created, ok := parseTimestamp(tweet.CreatedAt)
			if !ok {
				created = now
			}
			if created.Before(cutoff) {
				continue
			}
			result.Fetched++

			link := "https://x.com/i/web/status/" + tweet.ID
			result.match(tweet.Text, false, func(item *models.MatchedItem) {
				item.Bucket = bucket
				item.Type = models.ItemTweet
				item.ItemID = tweet.ID
				item.CreatedAt = created
				item.Score = tweet.PublicMetrics.LikeCount + tweet.PublicMetrics.RetweetCount
				item.Title = titleFromText(tweet.Text)
				item.URL = link
				item.Permalink = link
			})
		}

		logrus.Debugf("Searched X for %q: %d tweets", query, len(tweets))
	}

	logrus.Infof("X: fetched %d items, matched %d", result.Fetched, result.Matched)
	return result, nil
}

// searchRecent follows next_token until limit tweets are collected.
func (x *XSource) searchRecent(ctx context.Context, query string, limit int, startTime time.Time) ([]xTweet, models.RateLimit, error) {
	if limit <= 0 {
		limit = xMaxResults
	}

	var rateLimit models.RateLimit
	var tweets []xTweet
	nextToken := ""

	for {
		params := map[string]string{
			"query":        query,
			"max_results":  strconv.Itoa(clampInt(limit, xMinResults, xMaxResults)),
			"tweet.fields": "created_at,public_metrics",
			"start_time":   startTime.Format(time.RFC3339),
		}
		if nextToken != "" {
			params["next_token"] = nextToken
		}

		resp, err := x.client.R().
			SetContext(ctx).
			SetAuthToken(x.bearerToken).
			SetQueryParams(params).
			Get(x.apiBase + "/tweets/search/recent")
		if err != nil {
			return nil, rateLimit, requestError(models.SourceX, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return nil, rateLimit, xStatusError(resp)
		}

		rateLimit = headerRateLimit("", resp, "x-rate-limit-")

		var page xSearchResponse
		if err := json.Unmarshal(resp.Body(), &page); err != nil {
			return nil, rateLimit, decodeError(models.SourceX, err)
		}
		tweets = append(tweets, page.Data...)

		nextToken = page.Meta.NextToken
		if nextToken == "" || len(tweets) >= limit {
			break
		}
	}

	if len(tweets) > limit {
		tweets = tweets[:limit]
	}
	return tweets, rateLimit, nil
}

// xStatusError inspects the problem payload before falling back to the
// status code, since depleted credits arrive with several statuses.
func xStatusError(resp *resty.Response) *Error {
	var payload xErrorPayload
	_ = json.Unmarshal(resp.Body(), &payload)

	text := strings.ToLower(fmt.Sprintf("%s %s %s", payload.Title, payload.Detail, payload.Type))
	if strings.Contains(text, "credits") {
		detail := payload.Detail
		if detail == "" {
			detail = payload.Title
		}
		return &Error{Provider: models.SourceX, Kind: KindCreditsDepleted, Status: resp.StatusCode(), Detail: detail}
	}
	return statusError(models.SourceX, resp)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
