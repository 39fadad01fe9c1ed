package provider

import (
	"context"
	"testing"
)

type stubProvider struct {
	name    string
	targets map[string]bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Supports(targetType string) bool { return s.targets[targetType] }

func (s *stubProvider) Invoke(ctx context.Context, target Target) ([]RawFinding, error) {
	return nil, nil
}

func TestRegistrySelect(t *testing.T) {
	registry := NewRegistry(
		&stubProvider{name: "email-only", targets: map[string]bool{TargetEmail: true}},
		&stubProvider{name: "any", targets: map[string]bool{TargetEmail: true, TargetUsername: true, TargetPhone: true}},
	)

	// Empty request falls back to defaults, filtered by target support.
	selected, err := registry.Select(nil, []string{"email-only", "any"}, TargetUsername)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(selected) != 1 || selected[0].Name() != "any" {
		t.Errorf("selected = %v, want [any]", names(selected))
	}

	// Explicit request overrides defaults.
	selected, err = registry.Select([]string{"email-only"}, []string{"any"}, TargetEmail)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(selected) != 1 || selected[0].Name() != "email-only" {
		t.Errorf("selected = %v, want [email-only]", names(selected))
	}

	// Unknown names are an error, not silently dropped.
	if _, err := registry.Select([]string{"nope"}, nil, TargetEmail); err == nil {
		t.Error("unknown provider should error")
	}
}

func names(providers []Provider) []string {
	var out []string
	for _, p := range providers {
		out = append(out, p.Name())
	}
	return out
}

func TestRegistryOrderStable(t *testing.T) {
	registry := NewRegistry(
		&stubProvider{name: "c"},
		&stubProvider{name: "a"},
		&stubProvider{name: "b"},
	)
	got := registry.Names()
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names = %v, want %v (registration order)", got, want)
		}
	}
}

func TestStatusAllExternalFlag(t *testing.T) {
	registry := NewRegistry(NewSocialProfiles(nil), NewDataBroker())
	statuses := registry.StatusAll()

	byName := make(map[string]Status)
	for _, st := range statuses {
		byName[st.Name] = st
	}
	if !byName["social_profiles"].External {
		t.Error("social_profiles should report external")
	}
	if byName["data_broker"].External {
		t.Error("data_broker performs no network calls; should not report external")
	}
}
