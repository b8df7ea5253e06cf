// Package trends turns per-scan idea summaries into ranked, annotated ideas by
// comparing them with the previous scan of the same organization.
package trends

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalforge/signalforge/internal/ideas"
	"github.com/signalforge/signalforge/internal/models"
)

// Signal is the coarse strength of an idea
type Signal string

const (
	SignalHigh   Signal = "High"
	SignalMedium Signal = "Medium"
	SignalLow    Signal = "Low"
)

// Momentum classifies the mention trend between two consecutive scans
type Momentum string

const (
	MomentumUp   Momentum = "Up"
	MomentumDown Momentum = "Down"
	MomentumFlat Momentum = "Flat"
	MomentumNew  Momentum = "New"
)

// momentumThreshold is the mention delta that counts as a move up or down.
const momentumThreshold = 3

// Idea is an IdeaSummary enriched for presentation
type Idea struct {
	models.IdeaSummary
	Signal            Signal     `json:"signal"`
	PayRatio          float64    `json:"pay_ratio"`
	MentionsPerDay    float64    `json:"mentions_per_day"`
	Persona           string     `json:"persona"`
	DeltaMentions     *int       `json:"delta_mentions"`
	DeltaPay          *int       `json:"delta_pay"`
	Momentum          Momentum   `json:"momentum"`
	Brief             string     `json:"brief"`
	ProblemStatement  string     `json:"problem_statement"`
	MVPAngle          string     `json:"mvp_angle"`
	PricingHypothesis string     `json:"pricing_hypothesis"`
	Evidence          []Evidence `json:"evidence,omitempty"`
}

// Evidence is one matched item shown as proof for an idea
type Evidence struct {
	Snippet   string `json:"snippet"`
	Permalink string `json:"permalink"`
	Score     int    `json:"score"`
}

// Enrich annotates the current summaries. previous holds the summaries of the
// preceding scan and may be nil, in which case every idea is New.
func Enrich(current []models.IdeaSummary, lookbackDays int, previous []models.IdeaSummary) []Idea {
	prevByKey := make(map[string]models.IdeaSummary, len(previous))
	for _, p := range previous {
		prevByKey[p.IdeaKey] = p
	}

	out := make([]Idea, 0, len(current))
	for _, summary := range current {
		idea := Idea{
			IdeaSummary:    summary,
			Signal:         SignalFor(summary.Mentions, summary.PayMentions),
			PayRatio:       PayRatio(summary.Mentions, summary.PayMentions),
			MentionsPerDay: MentionsPerDay(summary.Mentions, lookbackDays),
			Persona:        Persona(summary.Buckets),
			Momentum:       MomentumNew,
		}

		if prev, ok := prevByKey[summary.IdeaKey]; ok {
			dm := summary.Mentions - prev.Mentions
			dp := summary.PayMentions - prev.PayMentions
			idea.DeltaMentions = &dm
			idea.DeltaPay = &dp
			idea.Momentum = MomentumFor(dm)
		}

		idea.Brief = brief(idea, lookbackDays)
		idea.ProblemStatement = ProblemStatement(summary.IdeaKey, idea.Persona)
		idea.MVPAngle = MVPAngle(summary.IdeaKey, idea.Persona)
		idea.PricingHypothesis = PricingHypothesis(idea.PayRatio, summary.Mentions)
		out = append(out, idea)
	}
	return out
}

// SignalFor grades an idea by pay mentions first, then raw volume.
func SignalFor(mentions, payMentions int) Signal {
	switch {
	case payMentions >= 2 || mentions >= 12:
		return SignalHigh
	case payMentions >= 1 || mentions >= 5:
		return SignalMedium
	default:
		return SignalLow
	}
}

// PayRatio is the percentage of mentions with a pay signal, one decimal.
func PayRatio(mentions, payMentions int) float64 {
	if mentions == 0 {
		return 0
	}
	return round(100*float64(payMentions)/float64(mentions), 1)
}

// MentionsPerDay spreads mentions over the lookback window, two decimals.
func MentionsPerDay(mentions, lookbackDays int) float64 {
	if lookbackDays <= 0 {
		return 0
	}
	return round(float64(mentions)/float64(lookbackDays), 2)
}

// MomentumFor classifies a mention delta against the previous scan.
func MomentumFor(deltaMentions int) Momentum {
	switch {
	case deltaMentions >= momentumThreshold:
		return MomentumUp
	case deltaMentions <= -momentumThreshold:
		return MomentumDown
	default:
		return MomentumFlat
	}
}

var momentumNotes = map[Momentum]string{
	MomentumUp:   "Momentum is rising in the latest scan.",
	MomentumDown: "Momentum cooled in the latest scan.",
	MomentumFlat: "Momentum is steady in the latest scan.",
	MomentumNew:  "Newly detected in the latest scan.",
}

func brief(idea Idea, lookbackDays int) string {
	sources := strings.Join(idea.Sources, ", ")
	if sources == "" {
		sources = models.SourceReddit
	}
	return fmt.Sprintf("%s mention this pain %d times over the last %d days across %s. "+
		"Pay signals show up in %.1f%% of mentions. %s",
		idea.Persona, idea.Mentions, lookbackDays, sources, idea.PayRatio, momentumNotes[idea.Momentum])
}

// ProblemStatement phrases the idea as a user problem.
func ProblemStatement(ideaKey, persona string) string {
	if ideaKey == ideas.Uncategorized {
		return fmt.Sprintf("%s report recurring workflow friction that currently lacks a simple tool.", persona)
	}
	return fmt.Sprintf("%s struggle with %s and want a faster, simpler workflow.", persona, ideaKey)
}

// MVPAngle suggests the smallest product that would address the idea.
func MVPAngle(ideaKey, persona string) string {
	if ideaKey == ideas.Uncategorized {
		return fmt.Sprintf("Start with a focused capture + automation flow for %s.", strings.ToLower(persona))
	}
	return fmt.Sprintf("Ship a lightweight tool that solves %s for %s with a 5-minute setup.", ideaKey, strings.ToLower(persona))
}

// PricingHypothesis picks one of three price tiers from pay ratio and volume.
func PricingHypothesis(payRatio float64, mentions int) string {
	switch {
	case payRatio >= 12 || mentions >= 15:
		return "Test $29-$79/mo with a founder-friendly annual discount."
	case payRatio >= 6 || mentions >= 8:
		return "Test $12-$39/mo with a free trial and strong onboarding."
	default:
		return "Test freemium or a $9-$19 starter tier to validate demand."
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
