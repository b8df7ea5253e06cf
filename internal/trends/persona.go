package trends

import (
	"strings"

	"github.com/signalforge/signalforge/internal/models"
)

// GeneralPersona is used when no bucket maps to a known audience.
const GeneralPersona = "General"

// platformPersonas covers query buckets, which describe a whole platform.
var platformPersonas = map[models.BucketKind]string{
	models.BucketXQuery:        "X audience",
	models.BucketBlueskyQuery:  "Bluesky audience",
	models.BucketMastodonQuery: "Mastodon audience",
}

// communityPersonas maps lower-cased subreddit names.
var communityPersonas = map[string]string{
	"entrepreneur":          "Founders",
	"startups":              "Founders",
	"entrepreneurridealong": "Builders",
	"sideproject":           "Indie builders",
	"saas":                  "SaaS founders",
	"smallbusiness":         "Small business owners",
	"androidapps":           "Android users",
	"iosapps":               "iOS users",
}

// PersonaFor maps a single bucket to its audience.
func PersonaFor(bucket models.Bucket) string {
	if persona, ok := platformPersonas[bucket.Kind]; ok {
		return persona
	}
	if persona, ok := communityPersonas[strings.ToLower(bucket.Name)]; ok {
		return persona
	}
	return GeneralPersona
}

// Persona returns the most frequent audience across buckets. Ties go to the
// persona whose first bucket comes earliest in the slice.
func Persona(buckets []models.Bucket) string {
	if len(buckets) == 0 {
		return GeneralPersona
	}

	counts := make(map[string]int)
	var order []string
	for _, b := range buckets {
		p := PersonaFor(b)
		if _, seen := counts[p]; !seen {
			order = append(order, p)
		}
		counts[p]++
	}

	best := order[0]
	for _, p := range order[1:] {
		if counts[p] > counts[best] {
			best = p
		}
	}
	return best
}
