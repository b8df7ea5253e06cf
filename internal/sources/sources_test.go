package sources

import (
	"errors"
	"strings"
	"testing"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSources_GetName(t *testing.T) {
	assert.Equal(t, "Reddit", NewRedditSource("id", "secret", "agent").GetName())
	assert.Equal(t, "X", NewXSource("token").GetName())
	assert.Equal(t, "Bluesky", NewBlueskySource().GetName())
	assert.Equal(t, "Mastodon", NewMastodonSource("").GetName())
}

func TestSources_IsEnabled(t *testing.T) {
	cfg := &models.ScanConfiguration{
		Reddit:   models.RedditSettings{Subreddits: []string{"SaaS"}},
		X:        models.XSettings{Enabled: true, Queries: []string{"app for"}},
		Bluesky:  models.BlueskySettings{Enabled: false, Queries: []string{"app for"}},
		Mastodon: models.MastodonSettings{Enabled: true},
	}

	assert.True(t, NewRedditSource("", "", "").IsEnabled(cfg), "credentials are checked at fetch time")
	assert.True(t, NewXSource("").IsEnabled(cfg))
	assert.False(t, NewBlueskySource().IsEnabled(cfg), "disabled source")
	assert.False(t, NewMastodonSource("").IsEnabled(cfg), "enabled without queries")

	cfg.Reddit.Subreddits = nil
	assert.False(t, NewRedditSource("id", "secret", "agent").IsEnabled(cfg))
}

func TestResultMatch(t *testing.T) {
	tests := []struct {
		name              string
		text              string
		requireAppRequest bool
		kept              bool
		pay               bool
	}{
		{
			name: "App request with pay signal",
			text: "I'd pay for an app that tracks my expenses",
			kept: true,
			pay:  true,
		},
		{
			name: "Pain only",
			text: "Reconciling invoices is so frustrating",
			kept: true,
		},
		{
			name:              "Pain only when app request is required",
			text:              "Reconciling invoices is so frustrating",
			requireAppRequest: true,
			kept:              false,
		},
		{
			name: "No signal",
			text: "Shipped a new landing page today",
			kept: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newResult(models.SourceReddit)
			kept := result.match(tt.text, tt.requireAppRequest, func(item *models.MatchedItem) {
				item.ItemID = "abc"
				item.Title = "title"
			})

			assert.Equal(t, tt.kept, kept)
			if !tt.kept {
				assert.Empty(t, result.Items)
				assert.Equal(t, 0, result.Ideas.Len())
				return
			}

			require.Len(t, result.Items, 1)
			item := result.Items[0]
			assert.Equal(t, models.SourceReddit, item.Source)
			assert.Equal(t, "abc", item.ItemID)
			assert.Equal(t, tt.pay, item.WillingToPay)
			assert.NotEmpty(t, item.IdeaKey)
			assert.Equal(t, 1, result.Matched)
			assert.Equal(t, 1, result.Ideas.Mentions())
		})
	}
}

func TestTitleFromText(t *testing.T) {
	short := "Need a tool for this"
	assert.Equal(t, short, titleFromText(short))

	long := strings.Repeat("a", 100)
	title := titleFromText(long)
	assert.Equal(t, strings.Repeat("a", 80)+"...", title)
}

func TestSnippet(t *testing.T) {
	text := "line one\nline two " + strings.Repeat("x", 300)
	s := snippet(text)
	assert.NotContains(t, s, "\n")
	assert.LessOrEqual(t, len([]rune(s)), snippetLength)
	assert.True(t, strings.HasPrefix(s, "line one line two"))
}

func TestErrorWarning(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "Missing credential",
			err:      missingCredential(models.SourceX, "X_BEARER_TOKEN"),
			expected: "X scan skipped: missing environment variable: X_BEARER_TOKEN",
		},
		{
			name:     "Several missing credentials",
			err:      missingCredential(models.SourceReddit, "REDDIT_CLIENT_ID", "REDDIT_USER_AGENT"),
			expected: "Reddit scan skipped: missing environment variables: REDDIT_CLIENT_ID, REDDIT_USER_AGENT",
		},
		{
			name:     "Rate limited",
			err:      &Error{Provider: models.SourceBluesky, Kind: KindRateLimited, Status: 429},
			expected: "Bluesky rate limit reached. Try again later.",
		},
		{
			name:     "Credits depleted",
			err:      &Error{Provider: models.SourceX, Kind: KindCreditsDepleted},
			expected: "X credits depleted. Add credits in your X developer portal to fetch data.",
		},
		{
			name:     "Unauthorized with hint",
			err:      &Error{Provider: models.SourceMastodon, Kind: KindUnauthorized, Status: 401},
			expected: "Mastodon authentication failed. Check your token or instance.",
		},
		{
			name:     "Forbidden",
			err:      &Error{Provider: models.SourceBluesky, Kind: KindForbidden, Status: 403},
			expected: "Bluesky request blocked (403). Check VPN, firewall, or base URL.",
		},
		{
			name:     "Provider error",
			err:      &Error{Provider: models.SourceX, Kind: KindProvider, Status: 500, Detail: "boom"},
			expected: "X scan skipped: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Warning())
			assert.Equal(t, tt.expected, Warning(tt.err.Provider, tt.err))
		})
	}
}

func TestWarning_WrappedAndUntagged(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), &Error{Provider: models.SourceX, Kind: KindRateLimited})
	assert.Equal(t, "X rate limit reached. Try again later.", Warning(models.SourceX, wrapped))
	assert.Equal(t, KindRateLimited, KindOf(wrapped))

	plain := errors.New("connection reset")
	assert.Equal(t, "Reddit scan skipped: connection reset", Warning(models.SourceReddit, plain))
	assert.Equal(t, KindProvider, KindOf(plain))
}

func TestBuildXQuery(t *testing.T) {
	tests := []struct {
		name            string
		raw             string
		language        string
		includeRetweets bool
		expected        string
	}{
		{"Language and no retweets", "app for", "en", false, "app for lang:en -is:retweet"},
		{"Retweets included", "app for", "en", true, "app for lang:en"},
		{"No language", " tool for ", "", false, "tool for -is:retweet"},
		{"Bare query", "looking for", "", true, "looking for"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildXQuery(tt.raw, tt.language, tt.includeRetweets))
		})
	}
}

func TestBlueskyPostURL(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		handle   string
		expected string
	}{
		{
			name:     "Post URI with handle",
			uri:      "at://did:plc:abc123/app.bsky.feed.post/3kxyz",
			handle:   "alice.bsky.social",
			expected: "https://bsky.app/profile/alice.bsky.social/post/3kxyz",
		},
		{
			name:     "Missing handle",
			uri:      "at://did:plc:abc123/app.bsky.feed.post/3kxyz",
			expected: "at://did:plc:abc123/app.bsky.feed.post/3kxyz",
		},
		{
			name:     "Not a post URI",
			uri:      "at://did:plc:abc123/app.bsky.feed.generator/feed",
			handle:   "alice.bsky.social",
			expected: "at://did:plc:abc123/app.bsky.feed.generator/feed",
		},
		{
			name:     "Empty",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BlueskyPostURL(tt.uri, tt.handle))
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Paragraph with link",
			input:    `<p>Looking for an app <a href="https://x">here</a></p>`,
			expected: "Looking for an app here",
		},
		{
			name:     "Entities",
			input:    "<p>Tom &amp; Jerry&#39;s tool</p>",
			expected: "Tom & Jerry's tool",
		},
		{
			name:     "Line breaks",
			input:    "<p>first<br>second</p>",
			expected: "first\nsecond",
		},
		{
			name:     "Plain text",
			input:    "no markup",
			expected: "no markup",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripHTML(tt.input))
		})
	}
}
