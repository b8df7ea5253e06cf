package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/signalforge/signalforge/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIBase  = "https://oauth.reddit.com"
	redditWebBase  = "https://www.reddit.com"

	redditPageSize      = 100
	redditMoreBatchSize = 100
	redditMaxMoreRounds = 5
)

// RedditSource scans subreddit listings and their comments using app-only OAuth
type RedditSource struct {
	clientID     string
	clientSecret string
	userAgent    string
	apiBase      string
	tokenURL     string
}

type redditListing struct {
	Data struct {
		After    string        `json:"after"`
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

type redditComment struct {
	ID         string          `json:"id"`
	Body       string          `json:"body"`
	Score      int             `json:"score"`
	Permalink  string          `json:"permalink"`
	CreatedUTC float64         `json:"created_utc"`
	Replies    json.RawMessage `json:"replies"` // "" or a listing
}

type redditMore struct {
	Children []string `json:"children"`
}

type redditMoreChildrenResponse struct {
	JSON struct {
		Data struct {
			Things []redditThing `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// NewRedditSource creates a new Reddit source
func NewRedditSource(clientID, clientSecret, userAgent string) *RedditSource {
	return &RedditSource{
		clientID:     clientID,
		clientSecret: clientSecret,
		userAgent:    userAgent,
		apiBase:      redditAPIBase,
		tokenURL:     redditTokenURL,
	}
}

func (r *RedditSource) GetName() string {
	return models.SourceReddit
}

// IsEnabled reports whether any subreddit is configured. Missing
// credentials are reported by FetchSignals so they surface as a warning.
func (r *RedditSource) IsEnabled(cfg *models.ScanConfiguration) bool {
	return len(cfg.Reddit.Subreddits) > 0
}

func (r *RedditSource) missingCredentials() []string {
	var missing []string
	if r.clientID == "" {
		missing = append(missing, "REDDIT_CLIENT_ID")
	}
	if r.clientSecret == "" {
		missing = append(missing, "REDDIT_CLIENT_SECRET")
	}
	if r.userAgent == "" {
		missing = append(missing, "REDDIT_USER_AGENT")
	}
	return missing
}

func (r *RedditSource) FetchSignals(ctx context.Context, cfg *models.ScanConfiguration) (*Result, error) {
	if missing := r.missingCredentials(); len(missing) > 0 {
		return nil, missingCredential(models.SourceReddit, missing...)
	}

	settings := cfg.Reddit
	client := r.newClient(ctx)
	cutoff := cutoffFor(time.Now(), settings.SinceDays)
	result := newResult(models.SourceReddit)

	for _, name := range settings.Subreddits {
		posts, limits, err := r.listNew(ctx, client, name, settings.PostLimit, cutoff)
		if err != nil {
			return nil, err
		}
		result.RateLimits = append(result.RateLimits, limits)
		bucket := models.Bucket{Kind: models.BucketSubreddit, Name: name}

		for _, post := range posts {
			created := redditTime(post.CreatedUTC)
			if created.Before(cutoff) {
				continue
			}
			result.Fetched++

			text := strings.TrimSpace(post.Title + " " + post.Selftext)
			result.match(text, settings.RequireAppRequest, func(item *models.MatchedItem) {
				item.Bucket = bucket
				item.Type = models.ItemSubmission
				item.ItemID = post.ID
				item.CreatedAt = created
				item.Score = post.Score
				item.Title = post.Title
				item.URL = post.URL
				item.Permalink = redditWebBase + post.Permalink
				item.Snippet = snippet(post.Selftext)
			})

			if !settings.IncludeComments {
				continue
			}

			comments, err := r.fetchComments(ctx, client, post.ID, settings.CommentLimit)
			if err != nil {
				return nil, err
			}
			for _, comment := range comments {
				createdComment := redditTime(comment.CreatedUTC)
				if createdComment.Before(cutoff) {
					continue
				}
				result.Fetched++

				result.match(comment.Body, settings.RequireAppRequest, func(item *models.MatchedItem) {
					item.Bucket = bucket
					item.Type = models.ItemComment
					item.ItemID = comment.ID
					item.CreatedAt = createdComment
					item.Score = comment.Score
					item.Title = post.Title
					item.URL = post.URL
					item.Permalink = redditWebBase + comment.Permalink
				})
			}
		}

		logrus.Debugf("Scanned r/%s: %d posts in window", name, len(posts))
	}

	logrus.Infof("Reddit: fetched %d items, matched %d", result.Fetched, result.Matched)
	return result, nil
}

func (r *RedditSource) newClient(ctx context.Context) *resty.Client {
	base := &http.Client{
		Timeout:   RequestTimeout,
		Transport: &userAgentTransport{agent: r.userAgent, next: http.DefaultTransport},
	}
	conf := &clientcredentials.Config{
		ClientID:     r.clientID,
		ClientSecret: r.clientSecret,
		TokenURL:     r.tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := conf.Client(context.WithValue(ctx, oauth2.HTTPClient, base))

	return resty.NewWithClient(httpClient).
		SetTimeout(RequestTimeout).
		SetHeader("User-Agent", r.userAgent)
}

// listNew pages through /r/<name>/new with the after cursor until limit
// posts are collected or the listing passes the cutoff.
func (r *RedditSource) listNew(ctx context.Context, client *resty.Client, subreddit string, limit int, cutoff time.Time) ([]redditPost, models.RateLimit, error) {
	if limit <= 0 {
		limit = redditPageSize
	}
	rateLimit := models.RateLimit{Query: subreddit}
	endpoint := fmt.Sprintf("%s/r/%s/new", r.apiBase, url.PathEscape(subreddit))

	var posts []redditPost
	after := ""
	for len(posts) < limit {
		params := map[string]string{
			"limit":    strconv.Itoa(minInt(limit-len(posts), redditPageSize)),
			"raw_json": "1",
		}
		if after != "" {
			params["after"] = after
		}

		resp, err := client.R().SetContext(ctx).SetQueryParams(params).Get(endpoint)
		if err != nil {
			return nil, rateLimit, r.transportError(err)
		}
		rateLimit = redditRateLimit(subreddit, resp)
		if resp.StatusCode() != http.StatusOK {
			return nil, rateLimit, statusError(models.SourceReddit, resp)
		}

		var listing redditListing
		if err := json.Unmarshal(resp.Body(), &listing); err != nil {
			return nil, rateLimit, decodeError(models.SourceReddit, err)
		}

		passedCutoff := false
		for _, child := range listing.Data.Children {
			if child.Kind != "t3" {
				continue
			}
			var post redditPost
			if err := json.Unmarshal(child.Data, &post); err != nil {
				return nil, rateLimit, decodeError(models.SourceReddit, err)
			}
			posts = append(posts, post)
			if redditTime(post.CreatedUTC).Before(cutoff) {
				passedCutoff = true
			}
		}

		after = listing.Data.After
		if len(listing.Data.Children) == 0 || after == "" || passedCutoff {
			break
		}
	}

	if len(posts) > limit {
		posts = posts[:limit]
	}
	return posts, rateLimit, nil
}

// fetchComments returns up to limit comments of a post, newest first,
// expanding "load more" stubs. A limit of 0 means no cap.
func (r *RedditSource) fetchComments(ctx context.Context, client *resty.Client, postID string, limit int) ([]redditComment, error) {
	params := map[string]string{"sort": "new", "raw_json": "1"}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}

	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(fmt.Sprintf("%s/comments/%s", r.apiBase, url.PathEscape(postID)))
	if err != nil {
		return nil, r.transportError(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(models.SourceReddit, resp)
	}

	var listings []redditListing
	if err := json.Unmarshal(resp.Body(), &listings); err != nil {
		return nil, decodeError(models.SourceReddit, err)
	}
	if len(listings) < 2 {
		return nil, decodeError(models.SourceReddit, fmt.Errorf("comment page for %s has %d listings", postID, len(listings)))
	}

	tree := &commentTree{limit: limit}
	if err := tree.walk(listings[1].Data.Children); err != nil {
		return nil, decodeError(models.SourceReddit, err)
	}

	for round := 0; round < redditMaxMoreRounds && !tree.full() && len(tree.more) > 0; round++ {
		batch := tree.takeMore(redditMoreBatchSize)
		things, err := r.moreChildren(ctx, client, postID, batch)
		if err != nil {
			return nil, err
		}
		if err := tree.walk(things); err != nil {
			return nil, decodeError(models.SourceReddit, err)
		}
	}

	return tree.comments, nil
}

func (r *RedditSource) moreChildren(ctx context.Context, client *resty.Client, postID string, children []string) ([]redditThing, error) {
	resp, err := client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"api_type": "json",
			"link_id":  "t3_" + postID,
			"children": strings.Join(children, ","),
			"sort":     "new",
			"raw_json": "1",
		}).
		Get(r.apiBase + "/api/morechildren")
	if err != nil {
		return nil, r.transportError(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(models.SourceReddit, resp)
	}

	var more redditMoreChildrenResponse
	if err := json.Unmarshal(resp.Body(), &more); err != nil {
		return nil, decodeError(models.SourceReddit, err)
	}
	return more.JSON.Data.Things, nil
}

// transportError maps client failures, including failed token requests.
func (r *RedditSource) transportError(err error) *Error {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return requestError(models.SourceReddit, err)
	}

	e := &Error{Provider: models.SourceReddit, Kind: KindUnauthorized, Detail: "token request failed", Err: err}
	if retrieveErr.Response != nil {
		e.Status = retrieveErr.Response.StatusCode
		switch {
		case e.Status == http.StatusTooManyRequests:
			e.Kind = KindRateLimited
		case e.Status >= http.StatusInternalServerError:
			e.Kind = KindProvider
		}
	}
	return e
}

// commentTree flattens a comment forest breadth first and remembers the
// ids hidden behind "more" stubs.
type commentTree struct {
	limit    int
	comments []redditComment
	more     []string
}

func (t *commentTree) full() bool {
	return t.limit > 0 && len(t.comments) >= t.limit
}

func (t *commentTree) walk(things []redditThing) error {
	queue := append([]redditThing(nil), things...)
	for len(queue) > 0 && !t.full() {
		thing := queue[0]
		queue = queue[1:]

		switch thing.Kind {
		case "t1":
			var c redditComment
			if err := json.Unmarshal(thing.Data, &c); err != nil {
				return err
			}
			t.comments = append(t.comments, c)
			replies, err := c.replyThings()
			if err != nil {
				return err
			}
			queue = append(queue, replies...)
		case "more":
			var m redditMore
			if err := json.Unmarshal(thing.Data, &m); err != nil {
				return err
			}
			t.more = append(t.more, m.Children...)
		}
	}
	return nil
}

func (t *commentTree) takeMore(n int) []string {
	if n > len(t.more) {
		n = len(t.more)
	}
	batch := t.more[:n]
	t.more = t.more[n:]
	return batch
}

func (c redditComment) replyThings() ([]redditThing, error) {
	raw := strings.TrimSpace(string(c.Replies))
	if !strings.HasPrefix(raw, "{") {
		return nil, nil
	}
	var listing redditListing
	if err := json.Unmarshal(c.Replies, &listing); err != nil {
		return nil, err
	}
	return listing.Data.Children, nil
}

func redditTime(createdUTC float64) time.Time {
	return time.Unix(int64(createdUTC), 0).UTC()
}

func redditRateLimit(query string, resp *resty.Response) models.RateLimit {
	h := resp.Header()
	return models.RateLimit{
		Query:     query,
		Used:      h.Get("x-ratelimit-used"),
		Remaining: h.Get("x-ratelimit-remaining"),
		Reset:     h.Get("x-ratelimit-reset"),
	}
}

type userAgentTransport struct {
	agent string
	next  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.next.RoundTrip(req)
}
