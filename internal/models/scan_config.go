package models

import (
	"fmt"
	"strings"
)

// ScanConfiguration is the per-organization scan setup
type ScanConfiguration struct {
	Reddit   RedditSettings   `json:"reddit" yaml:"reddit"`
	X        XSettings        `json:"x" yaml:"x"`
	Bluesky  BlueskySettings  `json:"bluesky" yaml:"bluesky"`
	Mastodon MastodonSettings `json:"mastodon" yaml:"mastodon"`
}

type RedditSettings struct {
	Subreddits        []string `json:"subreddits" yaml:"subreddits"`
	SinceDays         int      `json:"since_days" yaml:"since_days"`
	PostLimit         int      `json:"post_limit" yaml:"post_limit"`
	IncludeComments   bool     `json:"include_comments" yaml:"include_comments"`
	CommentLimit      int      `json:"comment_limit" yaml:"comment_limit"`
	RequireAppRequest bool     `json:"require_app_request" yaml:"require_app_request"`
}

type XSettings struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	Queries         []string `json:"queries" yaml:"queries"`
	SinceDays       int      `json:"since_days" yaml:"since_days"`
	PostLimit       int      `json:"post_limit" yaml:"post_limit"`
	Language        string   `json:"language" yaml:"language"`
	IncludeRetweets bool     `json:"include_retweets" yaml:"include_retweets"`
}

type BlueskySettings struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Queries   []string `json:"queries" yaml:"queries"`
	SinceDays int      `json:"since_days" yaml:"since_days"`
	PostLimit int      `json:"post_limit" yaml:"post_limit"`
	BaseURL   string   `json:"base_url" yaml:"base_url"`
}

type MastodonSettings struct {
	Enabled   bool     `json:"enabled" yaml:"enabled"`
	Instance  string   `json:"instance" yaml:"instance"`
	Queries   []string `json:"queries" yaml:"queries"`
	SinceDays int      `json:"since_days" yaml:"since_days"`
	PostLimit int      `json:"post_limit" yaml:"post_limit"`
}

// Normalize trims every list entry and drops blanks.
func (c *ScanConfiguration) Normalize() {
	c.Reddit.Subreddits = CleanList(c.Reddit.Subreddits)
	c.X.Queries = CleanList(c.X.Queries)
	c.Bluesky.Queries = CleanList(c.Bluesky.Queries)
	c.Mastodon.Queries = CleanList(c.Mastodon.Queries)
}

// LookbackDays is the window used when turning mention counts into rates.
func (c *ScanConfiguration) LookbackDays() int {
	if c.X.SinceDays > c.Reddit.SinceDays {
		return c.X.SinceDays
	}
	return c.Reddit.SinceDays
}

// CleanList trims entries and removes empty ones, keeping order.
func CleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Clone returns a deep copy so callers can mutate lists freely.
func (c ScanConfiguration) Clone() ScanConfiguration {
	out := c
	out.Reddit.Subreddits = append([]string(nil), c.Reddit.Subreddits...)
	out.X.Queries = append([]string(nil), c.X.Queries...)
	out.Bluesky.Queries = append([]string(nil), c.Bluesky.Queries...)
	out.Mastodon.Queries = append([]string(nil), c.Mastodon.Queries...)
	return out
}

// Validate rejects negative windows and limits.
func (c *ScanConfiguration) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"reddit.since_days", c.Reddit.SinceDays},
		{"reddit.post_limit", c.Reddit.PostLimit},
		{"reddit.comment_limit", c.Reddit.CommentLimit},
		{"x.since_days", c.X.SinceDays},
		{"x.post_limit", c.X.PostLimit},
		{"bluesky.since_days", c.Bluesky.SinceDays},
		{"bluesky.post_limit", c.Bluesky.PostLimit},
		{"mastodon.since_days", c.Mastodon.SinceDays},
		{"mastodon.post_limit", c.Mastodon.PostLimit},
	}
	for _, check := range checks {
		if check.value < 0 {
			return fmt.Errorf("%s must not be negative", check.name)
		}
	}
	return nil
}
