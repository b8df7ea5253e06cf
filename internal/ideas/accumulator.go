package ideas

import (
	"sort"

	"github.com/signalforge/signalforge/internal/models"
)

// sampleRank orders candidate samples: lower source priority wins, then the
// earlier item within that source.
type sampleRank struct {
	priority int
	seq      int
}

func (r sampleRank) less(o sampleRank) bool {
	if r.priority != o.priority {
		return r.priority < o.priority
	}
	return r.seq < o.seq
}

type entry struct {
	mentions    int
	payMentions int
	sources     map[string]struct{}
	buckets     map[models.Bucket]struct{}
	sampleTitle string
	sampleURL   string
	rank        sampleRank
	hasSample   bool
}

func newEntry() *entry {
	return &entry{
		sources: make(map[string]struct{}),
		buckets: make(map[models.Bucket]struct{}),
	}
}

func (e *entry) offerSample(title, url string, rank sampleRank) {
	if title == "" {
		return
	}
	if !e.hasSample || rank.less(e.rank) {
		e.sampleTitle = title
		e.sampleURL = url
		e.rank = rank
		e.hasSample = true
	}
}

// Accumulator builds IdeaSummaries keyed by idea key. Merge is associative
// and commutative: counts add, source and bucket sets union, and the sample
// is the one with the best (source priority, item order) rank.
// An Accumulator is not safe for concurrent mutation.
type Accumulator struct {
	priority int
	seq      int
	entries  map[string]*entry
}

// NewAccumulator creates an accumulator whose samples rank by the priority of source.
func NewAccumulator(source string) *Accumulator {
	return &Accumulator{
		priority: models.SourcePriority(source),
		entries:  make(map[string]*entry),
	}
}

// Add counts one matched item under its idea key.
func (a *Accumulator) Add(item models.MatchedItem) {
	e, ok := a.entries[item.IdeaKey]
	if !ok {
		e = newEntry()
		a.entries[item.IdeaKey] = e
	}
	e.mentions++
	if item.WillingToPay {
		e.payMentions++
	}
	e.sources[item.Source] = struct{}{}
	e.buckets[item.Bucket] = struct{}{}
	e.offerSample(item.Title, item.Permalink, sampleRank{priority: a.priority, seq: a.seq})
	a.seq++
}

// Merge folds other into a. other is left untouched.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil {
		return
	}
	for key, in := range other.entries {
		e, ok := a.entries[key]
		if !ok {
			e = newEntry()
			a.entries[key] = e
		}
		e.mentions += in.mentions
		e.payMentions += in.payMentions
		for s := range in.sources {
			e.sources[s] = struct{}{}
		}
		for b := range in.buckets {
			e.buckets[b] = struct{}{}
		}
		if in.hasSample {
			e.offerSample(in.sampleTitle, in.sampleURL, in.rank)
		}
	}
}

// Len returns the number of distinct idea keys.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// Mentions returns the total mention count across keys.
func (a *Accumulator) Mentions() int {
	total := 0
	for _, e := range a.entries {
		total += e.mentions
	}
	return total
}

// Summaries returns one summary per key, most mentioned first, ties by key.
// Sources and buckets are sorted so equal accumulators render identically.
func (a *Accumulator) Summaries() []models.IdeaSummary {
	out := make([]models.IdeaSummary, 0, len(a.entries))
	for key, e := range a.entries {
		s := models.IdeaSummary{
			IdeaKey:     key,
			Mentions:    e.mentions,
			PayMentions: e.payMentions,
			SampleTitle: e.sampleTitle,
			SampleURL:   e.sampleURL,
		}
		for src := range e.sources {
			s.Sources = append(s.Sources, src)
		}
		sort.Strings(s.Sources)
		for b := range e.buckets {
			s.Buckets = append(s.Buckets, b)
		}
		SortBuckets(s.Buckets)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mentions != out[j].Mentions {
			return out[i].Mentions > out[j].Mentions
		}
		return out[i].IdeaKey < out[j].IdeaKey
	})
	return out
}

// SortBuckets orders buckets by label, then kind.
func SortBuckets(buckets []models.Bucket) {
	sort.Slice(buckets, func(i, j int) bool {
		li, lj := buckets[i].Label(), buckets[j].Label()
		if li != lj {
			return li < lj
		}
		return buckets[i].Kind < buckets[j].Kind
	})
}
