package scanner

import "github.com/jamesruggles/footprint/internal/provider"

// Confidence scoring. The constants here are a public contract: stored
// scores are compared across scans over time, so the tiers, weights, and
// clamp behavior must not drift.

// providerCountScore converts the number of independent agreeing providers
// into a 0-100 sub-score with diminishing returns. Count alone never
// reaches 100.
func providerCountScore(count int) float64 {
	switch {
	case count <= 0:
		return 0
	case count == 1:
		return 50
	case count == 2:
		return 75
	default:
		return 90
	}
}

// dataQualityScore rewards completeness, verification, and trusted-source
// membership. Capped at 100.
func dataQualityScore(sig provider.Signals) float64 {
	score := float64(len(sig.Fields)) * 10
	if score > 60 {
		score = 60
	}
	if sig.Verified {
		score += 20
	}
	if sig.Trusted {
		score += 20
	}
	if score > 100 {
		score = 100
	}
	return score
}

// crossValidationScore measures field-level overlap between this source's
// fields and sibling sources reporting the same category. With nothing to
// compare against it returns a neutral 50 rather than penalizing a lone
// source.
func crossValidationScore(fields []string, siblings [][]string) float64 {
	if len(fields) == 0 || len(siblings) == 0 {
		return 50
	}
	mine := make(map[string]bool, len(fields))
	for _, f := range fields {
		mine[f] = true
	}

	var total float64
	for _, sib := range siblings {
		if len(sib) == 0 {
			continue
		}
		overlap := 0
		for _, f := range sib {
			if mine[f] {
				overlap++
			}
		}
		denom := len(sib)
		if len(fields) > denom {
			denom = len(fields)
		}
		total += float64(overlap) / float64(denom)
	}
	return total / float64(len(siblings)) * 100
}

// calculateFinalConfidence blends the sub-scores into the 0-100 confidence
// number: 30% provider count + 25% agreement fraction + 25% data quality +
// 15% cross-validation, plus a flat 5 when independently verified.
// Always clamped to [0,100].
func calculateFinalConfidence(agreeing, queried int, sig provider.Signals, siblings [][]string) float64 {
	var fraction float64
	if queried > 0 {
		fraction = float64(agreeing) / float64(queried)
		if fraction > 1 {
			fraction = 1
		}
	}

	score := 0.30*providerCountScore(agreeing) +
		0.25*fraction*100 +
		0.25*dataQualityScore(sig) +
		0.15*crossValidationScore(sig.Fields, siblings)

	if sig.Verified {
		score += 5
	}

	return clamp(score, 0, 100)
}

// socialProfileFields are the completeness fields the social variant
// rewards.
var socialProfileFields = map[string]bool{
	"name":           true,
	"bio":            true,
	"avatar":         true,
	"follower_count": true,
}

// socialProfileConfidence scores a social profile hit: base 40 for found,
// +10 per completeness field, +10 when verified, plus a cross-platform
// bonus of 5 per other platform capped at 20. Clamped to [0,100].
func socialProfileConfidence(found bool, sig provider.Signals, crossPlatform int) float64 {
	if !found {
		return 0
	}
	score := 40.0
	for _, f := range sig.Fields {
		if socialProfileFields[f] {
			score += 10
		}
	}
	if sig.Verified {
		score += 10
	}
	bonus := float64(crossPlatform) * 5
	if bonus > 20 {
		bonus = 20
	}
	score += bonus

	return clamp(score, 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
