package watchlist

import (
	"testing"

	"github.com/jamesruggles/footprint/internal/database"
)

func entityWith(metadata map[string]string) *database.EntityNode {
	return &database.EntityNode{
		ID:          "ent-1",
		EntityType:  "email",
		EntityValue: "alice@example.com",
		Metadata:    metadata,
	}
}

func TestEvaluateRuleOperators(t *testing.T) {
	entity := entityWith(map[string]string{
		"avatar_hash":   "abc123",
		"email_pattern": "alice.s@example.com",
		"vt_reputation": "42",
		"phone_prefix":  "+44",
	})

	cases := []struct {
		name string
		rule database.Rule
		want bool
	}{
		{"equals match", database.Rule{Type: "avatar_hash", Operator: "equals", Value: "abc123"}, true},
		{"equals miss", database.Rule{Type: "avatar_hash", Operator: "equals", Value: "zzz"}, false},
		{"contains match", database.Rule{Type: "email_pattern", Operator: "contains", Value: "@example.com"}, true},
		{"contains miss", database.Rule{Type: "email_pattern", Operator: "contains", Value: "@other.org"}, false},
		{"matches match", database.Rule{Type: "email_pattern", Operator: "matches", Value: `^alice\..*@example\.com$`}, true},
		{"matches miss", database.Rule{Type: "email_pattern", Operator: "matches", Value: `^bob@`}, false},
		{"greater_than match", database.Rule{Type: "vt_reputation", Operator: "greater_than", Value: "40"}, true},
		{"greater_than miss", database.Rule{Type: "vt_reputation", Operator: "greater_than", Value: "50"}, false},
		{"less_than match", database.Rule{Type: "vt_reputation", Operator: "less_than", Value: "50"}, true},
		{"less_than miss", database.Rule{Type: "vt_reputation", Operator: "less_than", Value: "10"}, false},
	}
	for _, tc := range cases {
		if got := EvaluateRule(entity, tc.rule); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestEvaluateRuleTotality(t *testing.T) {
	entity := entityWith(map[string]string{
		"avatar_hash":   "abc",
		"vt_reputation": "not-a-number",
	})

	// None of these may error or panic; they just fail to match.
	cases := []database.Rule{
		{Type: "unknown_type", Operator: "equals", Value: "x"},
		{Type: "pgp_key", Operator: "equals", Value: "x"},             // metadata key absent
		{Type: "avatar_hash", Operator: "divides", Value: "x"},        // unknown operator
		{Type: "avatar_hash", Operator: "matches", Value: "([bad"},    // malformed regex
		{Type: "vt_reputation", Operator: "greater_than", Value: "5"}, // non-numeric value
		{Type: "avatar_hash", Operator: "greater_than", Value: "oops"},
	}
	for i, rule := range cases {
		if EvaluateRule(entity, rule) {
			t.Errorf("case %d: rule %+v matched, want no-match", i, rule)
		}
	}
}

func TestEvaluateRuleNilMetadata(t *testing.T) {
	entity := entityWith(nil)
	rule := database.Rule{Type: "avatar_hash", Operator: "equals", Value: "x"}
	if EvaluateRule(entity, rule) {
		t.Error("entity without metadata matched")
	}
}
