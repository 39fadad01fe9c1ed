package watchlist

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/jamesruggles/footprint/internal/database"
)

// The recognized rule types. A rule's type names the entity metadata key it
// tests against.
var validRuleTypes = map[string]bool{
	"avatar_hash":   true,
	"pgp_key":       true,
	"email_pattern": true,
	"phone_prefix":  true,
	"asn":           true,
	"vt_reputation": true,
}

// EvaluateRule reports whether entity matches rule. It is total: unknown
// rule types, missing metadata, malformed patterns, and non-numeric
// comparisons all evaluate to no-match rather than an error, so a single
// bad rule can never wedge an expansion pass.
func EvaluateRule(entity *database.EntityNode, rule database.Rule) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("rule evaluation panicked", "rule_type", rule.Type, "entity_id", entity.ID, "panic", r)
			matched = false
		}
	}()

	if !validRuleTypes[rule.Type] {
		return false
	}
	value, ok := entity.Metadata[rule.Type]
	if !ok || value == "" {
		return false
	}

	switch rule.Operator {
	case "equals":
		return value == rule.Value
	case "contains":
		return strings.Contains(value, rule.Value)
	case "matches":
		re, err := regexp.Compile(rule.Value)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	case "greater_than":
		return compareNumeric(value, rule.Value, func(a, b float64) bool { return a > b })
	case "less_than":
		return compareNumeric(value, rule.Value, func(a, b float64) bool { return a < b })
	default:
		return false
	}
}

func compareNumeric(left, right string, cmp func(a, b float64) bool) bool {
	a, err := strconv.ParseFloat(left, 64)
	if err != nil {
		return false
	}
	b, err := strconv.ParseFloat(right, 64)
	if err != nil {
		return false
	}
	return cmp(a, b)
}

// matchesAny reports whether the entity satisfies at least one rule.
func matchesAny(entity *database.EntityNode, rules []database.Rule) bool {
	for _, rule := range rules {
		if EvaluateRule(entity, rule) {
			return true
		}
	}
	return false
}
