package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMastodonInstance is searched when no instance is configured
	DefaultMastodonInstance = "https://mastodon.social"

	mastodonMaxLimit = 40
)

// MastodonSource searches statuses on one Mastodon instance
type MastodonSource struct {
	client *resty.Client
	token  string
}

type mastodonSearchResponse struct {
	Statuses []mastodonStatus `json:"statuses"`
}

type mastodonStatus struct {
	ID              string `json:"id"`
	CreatedAt       string `json:"created_at"`
	Content         string `json:"content"`
	URL             string `json:"url"`
	URI             string `json:"uri"`
	FavouritesCount int    `json:"favourites_count"`
	ReblogsCount    int    `json:"reblogs_count"`
	RepliesCount    int    `json:"replies_count"`
}

// NewMastodonSource creates a new Mastodon source. The token is optional;
// some instances only allow authenticated search.
func NewMastodonSource(token string) *MastodonSource {
	client := resty.New().
		SetTimeout(RequestTimeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &MastodonSource{client: client, token: token}
}

func (m *MastodonSource) GetName() string {
	return models.SourceMastodon
}

func (m *MastodonSource) IsEnabled(cfg *models.ScanConfiguration) bool {
	return cfg.Mastodon.Enabled && len(cfg.Mastodon.Queries) > 0
}

func (m *MastodonSource) FetchSignals(ctx context.Context, cfg *models.ScanConfiguration) (*Result, error) {
	settings := cfg.Mastodon
	instance := strings.TrimRight(settings.Instance, "/")
	if instance == "" {
		instance = DefaultMastodonInstance
	}

	result := newResult(models.SourceMastodon)
	var cutoff time.Time
	if settings.SinceDays > 0 {
		cutoff = cutoffFor(time.Now(), settings.SinceDays)
	}

	for _, query := range settings.Queries {
		statuses, limits, err := m.searchStatuses(ctx, instance, query, settings.PostLimit)
		if err != nil {
			return nil, err
		}
		result.RateLimits = append(result.RateLimits, limits)
		bucket := models.Bucket{Kind: models.BucketMastodonQuery, Name: query}

		for _, status := range statuses {
			text := StripHTML(status.Content)
			if text == "" {
				continue
			}
			created, ok := parseTimestamp(status.CreatedAt)
			if ok && created.Before(cutoff) {
				continue
			}
			result.Fetched++

			link := status.URL
			if link == "" {
				link = status.URI
			}
			result.match(text, false, func(item *models.MatchedItem) {
				item.Bucket = bucket
				item.Type = models.ItemStatus
				item.ItemID = status.ID
				item.CreatedAt = created
				item.Score = status.FavouritesCount + status.ReblogsCount + status.RepliesCount
				item.Title = titleFromText(text)
				item.URL = link
				item.Permalink = link
			})
		}
	}

	logrus.WithField("instance", instance).Infof("Mastodon: fetched %d items, matched %d", result.Fetched, result.Matched)
	return result, nil
}

func (m *MastodonSource) searchStatuses(ctx context.Context, instance, query string, limit int) ([]mastodonStatus, models.RateLimit, error) {
	if limit <= 0 {
		limit = mastodonMaxLimit
	}
	rateLimit := models.RateLimit{Query: query}

	req := m.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":     query,
			"type":  "statuses",
			"limit": strconv.Itoa(minInt(limit, mastodonMaxLimit)),
		})
	if m.token != "" {
		req.SetAuthToken(m.token)
	}

	resp, err := req.Get(instance + "/api/v2/search")
	if err != nil {
		return nil, rateLimit, requestError(models.SourceMastodon, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, rateLimit, statusError(models.SourceMastodon, resp)
	}

	rateLimit = headerRateLimit(query, resp, "X-RateLimit-")

	var payload mastodonSearchResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, rateLimit, decodeError(models.SourceMastodon, err)
	}
	return payload.Statuses, rateLimit, nil
}

// StripHTML reduces a status body to plain text, keeping line and
// paragraph breaks as whitespace.
func StripHTML(content string) string {
	if content == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return strings.TrimSpace(content)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return strings.TrimSpace(doc.Text())
}
