package scanner

import (
	"math"

	"github.com/jamesruggles/footprint/internal/database"
)

// Exposure scoring. Like the confidence scorer, the caps, weights, and
// multipliers here are a public contract users compare across scans over
// time; they must be preserved exactly.

// The five fixed exposure categories, in display order.
const (
	CategoryPublicProfiles    = "public_profiles"
	CategoryIdentifierReuse   = "identifier_reuse"
	CategoryDataBroker        = "data_broker"
	CategoryBreachAssociation = "breach_association"
	CategoryMetadataSignals   = "metadata_signals"
)

var categoryOrder = []string{
	CategoryPublicProfiles,
	CategoryIdentifierReuse,
	CategoryDataBroker,
	CategoryBreachAssociation,
	CategoryMetadataSignals,
}

var categoryWeights = map[string]float64{
	CategoryPublicProfiles:    0.25,
	CategoryIdentifierReuse:   0.20,
	CategoryDataBroker:        0.20,
	CategoryBreachAssociation: 0.25,
	CategoryMetadataSignals:   0.10,
}

var severityMultipliers = map[string]float64{
	"critical": 1.5,
	"high":     1.2,
	"medium":   1.0,
	"low":      0.6,
	"info":     0.3,
}

var categoryInsights = map[string]string{
	CategoryPublicProfiles:    "Your identifier is linked to publicly visible profiles across multiple platforms.",
	CategoryIdentifierReuse:   "You reuse this identifier widely, making cross-site correlation easy.",
	CategoryDataBroker:        "Data brokers appear to hold listings associated with this identifier.",
	CategoryBreachAssociation: "This identifier appears in known data breaches.",
	CategoryMetadataSignals:   "Technical metadata around this identifier leaks additional signals.",
}

const defaultInsight = "No significant exposure signals were detected for this identifier."

// rawBucketCap bounds each category's raw score before normalization.
const rawBucketCap = 50.0

// CategoryBreakdown is one category's slice of the exposure result.
type CategoryBreakdown struct {
	Category string   `json:"category"`
	Detected bool     `json:"detected"`
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence"`
}

// ExposureResult is the aggregate exposure of one finding set.
type ExposureResult struct {
	Score      int                 `json:"score"`
	Level      string              `json:"level"`
	Insight    string              `json:"insight"`
	Categories []CategoryBreakdown `json:"categories"`
}

// CalculateExposureScore aggregates a finding set into a 0-100 exposure
// score, level, headline insight, and per-category breakdown. It is a pure
// function of the finding set: the same findings always produce the same
// result.
func CalculateExposureScore(findings []database.Finding) *ExposureResult {
	raw := make(map[string]float64, len(categoryOrder))
	evidence := make(map[string][]string, len(categoryOrder))

	add := func(category string, amount float64, note string) {
		raw[category] += amount
		if note != "" {
			evidence[category] = append(evidence[category], note)
		}
	}

	for _, f := range findings {
		contribution := f.Confidence * severityMultipliers[f.Severity] * 10
		note := f.Provider + ": " + f.Kind

		switch f.Kind {
		case "social_media":
			add(CategoryPublicProfiles, contribution, note)
		case "identity":
			// Broker-tagged identity findings spill partially into the
			// data-broker category.
			if hasTag(f.Tags, "broker") {
				add(CategoryPublicProfiles, contribution*0.7, note)
				add(CategoryDataBroker, contribution*0.3, note)
			} else {
				add(CategoryPublicProfiles, contribution, note)
			}
		case "breach":
			add(CategoryBreachAssociation, contribution, note)
		case "phone_intelligence":
			add(CategoryPublicProfiles, contribution*0.3, note)
			add(CategoryDataBroker, contribution*0.7, note)
		case "ip_exposure", "domain_reputation":
			add(CategoryMetadataSignals, contribution, note)
		}
	}

	// Identifier reuse is derived from provider spread, not finding kind:
	// the more independent sources know this identifier, the easier it is
	// to correlate.
	reuseProviders := make(map[string]bool)
	for _, f := range findings {
		if f.Kind == "social_media" || f.Kind == "identity" {
			reuseProviders[f.Provider] = true
		}
	}
	switch n := len(reuseProviders); {
	case n >= 5:
		raw[CategoryIdentifierReuse] = math.Min(30, float64(3*n))
	case n >= 3:
		raw[CategoryIdentifierReuse] = float64(2 * n)
	}

	// Cap, normalize, weight, sum.
	var weighted float64
	categories := make([]CategoryBreakdown, 0, len(categoryOrder))
	for _, cat := range categoryOrder {
		r := math.Min(raw[cat], rawBucketCap)
		normalized := r / rawBucketCap * 100
		weighted += normalized * categoryWeights[cat]
		categories = append(categories, CategoryBreakdown{
			Category: cat,
			Detected: r > 0,
			Score:    normalized,
			Evidence: evidence[cat],
		})
	}

	score := int(math.Round(clamp(weighted, 0, 100)))

	// The insight follows the loudest raw (pre-normalization) bucket.
	insight := defaultInsight
	var best float64
	for _, cat := range categoryOrder {
		r := math.Min(raw[cat], rawBucketCap)
		if r > 0 && r > best {
			best = r
			insight = categoryInsights[cat]
		}
	}

	return &ExposureResult{
		Score:      score,
		Level:      exposureLevel(score),
		Insight:    insight,
		Categories: categories,
	}
}

func exposureLevel(score int) string {
	switch {
	case score <= 29:
		return "low"
	case score <= 59:
		return "moderate"
	default:
		return "high"
	}
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
