package ideas

import (
	"testing"

	"github.com/signalforge/signalforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(source string, bucket models.Bucket, key, title string, pay bool) models.MatchedItem {
	return models.MatchedItem{
		Source:       source,
		Bucket:       bucket,
		IdeaKey:      key,
		Title:        title,
		Permalink:    "https://example.com/" + title,
		WillingToPay: pay,
	}
}

var (
	saas    = models.Bucket{Kind: models.BucketSubreddit, Name: "SaaS"}
	xQuery  = models.Bucket{Kind: models.BucketXQuery, Name: "app for"}
	bsQuery = models.Bucket{Kind: models.BucketBlueskyQuery, Name: "looking for"}
)

func TestAccumulator_AddCountsMentionsAndPay(t *testing.T) {
	acc := NewAccumulator(models.SourceReddit)
	acc.Add(item(models.SourceReddit, saas, "expense tracking budget", "first", true))
	acc.Add(item(models.SourceReddit, saas, "expense tracking budget", "second", false))

	summaries := acc.Summaries()
	require.Len(t, summaries, 1)
	s := summaries[0]
	assert.Equal(t, "expense tracking budget", s.IdeaKey)
	assert.Equal(t, 2, s.Mentions)
	assert.Equal(t, 1, s.PayMentions)
	assert.Equal(t, []string{models.SourceReddit}, s.Sources)
	assert.Equal(t, []models.Bucket{saas}, s.Buckets)
	assert.Equal(t, "first", s.SampleTitle)
}

func TestAccumulator_MergeIsOrderIndependent(t *testing.T) {
	build := func() (*Accumulator, *Accumulator, *Accumulator) {
		reddit := NewAccumulator(models.SourceReddit)
		reddit.Add(item(models.SourceReddit, saas, "roster swap", "reddit sample", false))
		reddit.Add(item(models.SourceReddit, saas, "invoice reminders", "reddit invoices", true))

		x := NewAccumulator(models.SourceX)
		x.Add(item(models.SourceX, xQuery, "roster swap", "x sample", true))

		bsky := NewAccumulator(models.SourceBluesky)
		bsky.Add(item(models.SourceBluesky, bsQuery, "roster swap", "bsky sample", true))
		bsky.Add(item(models.SourceBluesky, bsQuery, "meal planner", "bsky meals", false))
		return reddit, x, bsky
	}

	r1, x1, b1 := build()
	forward := NewAccumulator("")
	forward.Merge(r1)
	forward.Merge(x1)
	forward.Merge(b1)

	r2, x2, b2 := build()
	backward := NewAccumulator("")
	backward.Merge(b2)
	backward.Merge(x2)
	backward.Merge(r2)

	assert.Equal(t, forward.Summaries(), backward.Summaries())

	summaries := forward.Summaries()
	require.Len(t, summaries, 3)
	assert.Equal(t, "roster swap", summaries[0].IdeaKey)
	assert.Equal(t, 3, summaries[0].Mentions)
	assert.Equal(t, 2, summaries[0].PayMentions)
	assert.Equal(t, "reddit sample", summaries[0].SampleTitle, "sample comes from the highest priority source")
	assert.Equal(t, []string{models.SourceBluesky, models.SourceReddit, models.SourceX}, summaries[0].Sources)
}

func TestAccumulator_MergeKeepsPayBelowMentions(t *testing.T) {
	total := NewAccumulator("")
	for i := 0; i < 10; i++ {
		part := NewAccumulator(models.SourceOrder[i%len(models.SourceOrder)])
		for j := 0; j <= i; j++ {
			part.Add(item(models.SourceX, xQuery, "shared key", "t", j%2 == 0))
		}
		total.Merge(part)
	}
	for _, s := range total.Summaries() {
		assert.LessOrEqual(t, s.PayMentions, s.Mentions)
	}
	assert.Equal(t, 55, total.Mentions())
}

func TestAccumulator_MergeDoesNotAliasInput(t *testing.T) {
	src := NewAccumulator(models.SourceX)
	src.Add(item(models.SourceX, xQuery, "k", "t", false))

	dst := NewAccumulator("")
	dst.Merge(src)
	dst.Merge(src)

	assert.Equal(t, 1, src.Mentions())
	assert.Equal(t, 2, dst.Mentions())
}

func TestAccumulator_EmptyTitleDoesNotClaimSample(t *testing.T) {
	acc := NewAccumulator(models.SourceMastodon)
	acc.Add(item(models.SourceMastodon, saas, "k", "", false))
	acc.Add(item(models.SourceMastodon, saas, "k", "later", false))
	assert.Equal(t, "later", acc.Summaries()[0].SampleTitle)
}
