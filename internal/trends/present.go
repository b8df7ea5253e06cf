package trends

import (
	"sort"
	"strings"

	"github.com/signalforge/signalforge/internal/models"
)

// SortKey names an ordering of enriched ideas
type SortKey string

const (
	SortMentions    SortKey = "mentions"
	SortPayRatio    SortKey = "pay_ratio"
	SortPayMentions SortKey = "pay_mentions"
	SortMomentum    SortKey = "momentum"
	SortSignal      SortKey = "signal"
)

var momentumRank = map[Momentum]int{MomentumUp: 3, MomentumNew: 2, MomentumFlat: 1, MomentumDown: 0}

var signalRank = map[Signal]int{SignalHigh: 3, SignalMedium: 2, SignalLow: 1}

// ParseSortKey falls back to SortMentions for unknown values.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortPayRatio, SortPayMentions, SortMomentum, SortSignal:
		return k
	default:
		return SortMentions
	}
}

// Sort orders ideas descending by key. The sort is stable, so ideas that tie
// keep their incoming order.
func Sort(list []Idea, key SortKey) {
	var less func(a, b Idea) bool
	switch key {
	case SortPayRatio:
		less = func(a, b Idea) bool { return a.PayRatio > b.PayRatio }
	case SortPayMentions:
		less = func(a, b Idea) bool { return a.PayMentions > b.PayMentions }
	case SortMomentum:
		less = func(a, b Idea) bool { return momentumRank[a.Momentum] > momentumRank[b.Momentum] }
	case SortSignal:
		less = func(a, b Idea) bool { return signalRank[a.Signal] > signalRank[b.Signal] }
	default:
		less = func(a, b Idea) bool { return a.Mentions > b.Mentions }
	}
	sort.SliceStable(list, func(i, j int) bool { return less(list[i], list[j]) })
}

// Filter narrows a list of ideas. Zero values match everything.
type Filter struct {
	MinMentions int
	Source      string // exact source name, case-insensitive
	Idea        string // substring of the idea key, case-insensitive
}

// Apply returns the ideas that pass the filter.
func (f Filter) Apply(list []Idea) []Idea {
	out := make([]Idea, 0, len(list))
	for _, idea := range list {
		if idea.Mentions < f.MinMentions {
			continue
		}
		if f.Source != "" && !hasSource(idea.Sources, f.Source) {
			continue
		}
		if f.Idea != "" && !strings.Contains(strings.ToLower(idea.IdeaKey), strings.ToLower(f.Idea)) {
			continue
		}
		out = append(out, idea)
	}
	return out
}

// ItemFilter narrows the matched items of a scan.
type ItemFilter struct {
	Source   string
	Idea     string
	MinScore int
}

// Apply returns matching items ordered by score, highest first, at most limit
// of them when limit is positive.
func (f ItemFilter) Apply(items []models.MatchedItem, limit int) []models.MatchedItem {
	out := make([]models.MatchedItem, 0, len(items))
	for _, item := range items {
		if f.Source != "" && !strings.EqualFold(item.Source, f.Source) {
			continue
		}
		if f.Idea != "" && !strings.Contains(strings.ToLower(item.IdeaKey), strings.ToLower(f.Idea)) {
			continue
		}
		if item.Score < f.MinScore {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AttachEvidence gives each idea up to perIdea items, taken in the order of
// items. Callers pass items already sorted by score.
func AttachEvidence(list []Idea, items []models.MatchedItem, perIdea int) {
	byKey := make(map[string][]Evidence)
	for _, item := range items {
		if len(byKey[item.IdeaKey]) >= perIdea {
			continue
		}
		byKey[item.IdeaKey] = append(byKey[item.IdeaKey], Evidence{
			Snippet:   item.Snippet,
			Permalink: item.Permalink,
			Score:     item.Score,
		})
	}
	for i := range list {
		list[i].Evidence = byKey[list[i].IdeaKey]
	}
}

func hasSource(sources []string, want string) bool {
	for _, s := range sources {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
