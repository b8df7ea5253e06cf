// Package patterns detects app requests, pain and willingness to pay in free text.
package patterns

import (
	"regexp"
	"strings"

	"github.com/signalforge/signalforge/internal/models"
)

var groups = []struct {
	category models.Category
	patterns []string
}{
	{
		category: models.CategoryAppRequest,
		patterns: []string{
			`\bis there (an|a) app\b`,
			`\bis there an? (tool|software|service)\b`,
			`\bany app (for|that)\b`,
			`\bdoes anyone know (an? )?(app|tool|software|service)\b`,
			`\blooking for (an? )?(app|tool|software|service)\b`,
			`\bneed (an? )?(app|tool|software|service)\b`,
			`\bapp that (can|does|will)\b`,
			`\b(an?|the) (app|tool) that\b`,
			`\balternative to\b`,
		},
	},
	{
		category: models.CategoryPain,
		patterns: []string{
			`\bfrustrat(ed|ing)\b`,
			`\bthis (sucks|is awful|is terrible)\b`,
			`\bwhy is (there|this) no\b`,
			`\bwish there (was|were)\b`,
			`\bhate (having|to|that)\b`,
			`\bpain point\b`,
			`\bproblem is\b`,
			`\bstruggling with\b`,
		},
	},
	{
		category: models.CategoryPay,
		patterns: []string{
			`\bi'?d pay\b`,
			`\bi would pay\b`,
			`\bwilling to pay\b`,
			`\bpay for (an? )?(app|tool|software|service)\b`,
			`\bhappily pay\b`,
		},
	},
}

type compiledGroup struct {
	category models.Category
	rx       *regexp.Regexp
}

// Classifier matches text against one compiled alternation per category.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	groups []compiledGroup
}

var defaultClassifier = NewClassifier()

// NewClassifier compiles the category alternations.
func NewClassifier() *Classifier {
	c := &Classifier{}
	for _, g := range groups {
		c.groups = append(c.groups, compiledGroup{
			category: g.category,
			rx:       regexp.MustCompile(`(?i)(?:` + strings.Join(g.patterns, "|") + `)`),
		})
	}
	return c
}

// Classify returns the matching categories in app_request, pain, pay order.
func (c *Classifier) Classify(text string) []models.Category {
	if text == "" {
		return nil
	}
	var hits []models.Category
	for _, g := range c.groups {
		if g.rx.MatchString(text) {
			hits = append(hits, g.category)
		}
	}
	return hits
}

// Classify runs the shared default classifier.
func Classify(text string) []models.Category {
	return defaultClassifier.Classify(text)
}

// Has reports whether category is among categories.
func Has(categories []models.Category, category models.Category) bool {
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
