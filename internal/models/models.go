package models

import (
	"strings"
	"time"
)

// Source names as they appear on matched items and idea summaries
const (
	SourceReddit   = "Reddit"
	SourceX        = "X"
	SourceBluesky  = "Bluesky"
	SourceMastodon = "Mastodon"
)

// SourceOrder is the fixed execution order of sources. It doubles as the
// priority used to pick the sample of an idea when summaries are merged.
var SourceOrder = []string{SourceReddit, SourceX, SourceBluesky, SourceMastodon}

// SourcePriority returns the position of a source in SourceOrder, or
// len(SourceOrder) for unknown sources.
func SourcePriority(source string) int {
	for i, name := range SourceOrder {
		if name == source {
			return i
		}
	}
	return len(SourceOrder)
}

// Category is a signal category detected by the pattern classifier
type Category string

const (
	CategoryAppRequest Category = "app_request"
	CategoryPain       Category = "pain"
	CategoryPay        Category = "pay"
)

// ItemType is the provider-specific kind of a matched item
type ItemType string

const (
	ItemSubmission ItemType = "submission"
	ItemComment    ItemType = "comment"
	ItemPost       ItemType = "post"
	ItemStatus     ItemType = "status"
	ItemTweet      ItemType = "tweet"
)

// BucketKind says where inside a source an item was found
type BucketKind string

const (
	BucketSubreddit     BucketKind = "subreddit"
	BucketXQuery        BucketKind = "x_query"
	BucketBlueskyQuery  BucketKind = "bluesky_query"
	BucketMastodonQuery BucketKind = "mastodon_query"
)

// Bucket is a source-scoped grouping: a named community or a search query.
type Bucket struct {
	Kind BucketKind `json:"kind"`
	Name string     `json:"name"`
}

// Label renders the bucket the way it is shown to users: the subreddit name,
// or query:<q>, bsky:<q>, mastodon:<q> for searches.
func (b Bucket) Label() string {
	switch b.Kind {
	case BucketXQuery:
		return "query:" + b.Name
	case BucketBlueskyQuery:
		return "bsky:" + b.Name
	case BucketMastodonQuery:
		return "mastodon:" + b.Name
	default:
		return b.Name
	}
}

// MatchedItem is one post, comment, status or tweet that matched at least one category
type MatchedItem struct {
	Source       string     `json:"source"`
	Bucket       Bucket     `json:"bucket"`
	Type         ItemType   `json:"type"`
	ItemID       string     `json:"item_id"`
	CreatedAt    time.Time  `json:"created_at"`
	Score        int        `json:"score"` // sum of provider engagement counters
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	Permalink    string     `json:"permalink"`
	Categories   []Category `json:"categories"`
	WillingToPay bool       `json:"willing_to_pay"`
	IdeaKey      string     `json:"idea_key"`
	Snippet      string     `json:"snippet"`
}

// MatchGroups joins the categories with ";".
func (m MatchedItem) MatchGroups() string {
	parts := make([]string, len(m.Categories))
	for i, c := range m.Categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ";")
}

// IdeaSummary aggregates all matched items of one scan sharing an idea key
type IdeaSummary struct {
	IdeaKey     string   `json:"idea_key"`
	Mentions    int      `json:"mentions"`
	PayMentions int      `json:"pay_mentions"`
	Sources     []string `json:"sources"`
	Buckets     []Bucket `json:"buckets"`
	SampleTitle string   `json:"sample_title"`
	SampleURL   string   `json:"sample_url"`
}

// RateLimit is the rate-limit state a provider reported for one query
type RateLimit struct {
	Query     string `json:"query"`
	Limit     string `json:"limit,omitempty"`
	Used      string `json:"used,omitempty"`
	Remaining string `json:"remaining,omitempty"`
	Reset     string `json:"reset,omitempty"`
}

// SourceReport holds the per-source counters of a scan
type SourceReport struct {
	Source     string      `json:"source"`
	Attempted  bool        `json:"attempted"`
	Failed     bool        `json:"failed"`
	Fetched    int         `json:"fetched"`
	Matched    int         `json:"matched"`
	RateLimits []RateLimit `json:"rate_limits,omitempty"`
}

// Scan is one immutable execution snapshot for an organization.
// Listings leave Items and Ideas empty.
type Scan struct {
	ID        string         `json:"id"`
	OrgID     int64          `json:"org_id"`
	CreatedAt time.Time      `json:"created_at"`
	Sources   []SourceReport `json:"sources"`
	Warnings  []string       `json:"warnings"`
	Items     []MatchedItem  `json:"items,omitempty"`
	Ideas     []IdeaSummary  `json:"ideas,omitempty"`
}

// Report returns the counters of one source.
func (s *Scan) Report(source string) (SourceReport, bool) {
	for _, r := range s.Sources {
		if r.Source == source {
			return r, true
		}
	}
	return SourceReport{Source: source}, false
}

// Matched is the total number of matched items across sources.
func (s *Scan) Matched() int {
	total := 0
	for _, r := range s.Sources {
		total += r.Matched
	}
	return total
}

// ScheduleState controls periodic scanning of one organization
type ScheduleState struct {
	OrgID         int64      `json:"org_id"`
	IntervalHours int        `json:"interval_hours"` // 0 means manual only
	LastRun       *time.Time `json:"last_run,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Digest is the post-scan summary sent through notification channels
type Digest struct {
	OrgID       int64          `json:"org_id"`
	ScanID      string         `json:"scan_id"`
	GeneratedAt time.Time      `json:"generated_at"`
	Matched     int            `json:"matched"`
	IdeaCount   int            `json:"idea_count"`
	Sources     []SourceReport `json:"sources"`
	Warnings    []string       `json:"warnings"`
	TopIdeas    []DigestIdea   `json:"top_ideas"`
}

// DigestIdea is one enriched idea row inside a Digest
type DigestIdea struct {
	IdeaKey     string  `json:"idea_key"`
	Mentions    int     `json:"mentions"`
	PayMentions int     `json:"pay_mentions"`
	PayRatio    float64 `json:"pay_ratio"`
	Signal      string  `json:"signal"`
	Momentum    string  `json:"momentum"`
	Brief       string  `json:"brief"`
	SampleURL   string  `json:"sample_url"`
}
