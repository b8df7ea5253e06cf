// Package ideas clusters matched text into coarse idea keys and aggregates
// per-idea summaries.
package ideas

import (
	"regexp"
	"sort"
	"strings"
)

// Uncategorized is the key of text with no usable keywords.
const Uncategorized = "uncategorized"

const maxKeyTokens = 6

var tokenPattern = regexp.MustCompile(`[a-z]{4,}`)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		this that with from they them then than there here have has had your yours
		what which when where would could should their about into just like really
		very much some more most also only does doing done need want looking app
		apps tool tools software service services help anyone know find use using
		used make making made`) {
		stopwords[w] = struct{}{}
	}
}

// Key derives the idea key of text: the six most frequent lower-case
// alphabetic tokens of four or more letters, stop words removed, ordered by
// descending frequency with ties kept in first-occurrence order.
func Key(text string) string {
	type token struct {
		word  string
		count int
	}

	var tokens []*token
	index := make(map[string]*token)
	for _, w := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		if t, ok := index[w]; ok {
			t.count++
			continue
		}
		t := &token{word: w, count: 1}
		index[w] = t
		tokens = append(tokens, t)
	}

	if len(tokens) == 0 {
		return Uncategorized
	}

	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].count > tokens[j].count
	})

	if len(tokens) > maxKeyTokens {
		tokens = tokens[:maxKeyTokens]
	}
	words := make([]string, len(tokens))
	for i, t := range tokens {
		words[i] = t.word
	}
	return strings.Join(words, " ")
}
