package scanner

import (
	"fmt"
	"strings"
	"time"

	"github.com/jamesruggles/footprint/internal/database"
	"github.com/jamesruggles/footprint/internal/provider"
)

var validKinds = map[string]bool{
	"social_media":       true,
	"identity":           true,
	"breach":             true,
	"ip_exposure":        true,
	"domain_reputation":  true,
	"phone_intelligence": true,
}

var validSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
	"info":     true,
}

// normalizeFinding maps one raw provider result into the canonical Finding
// shape. Malformed payloads are rejected here so nothing downstream has to
// guess at provider-specific shapes. The confidence argument is the 0-100
// score from the scorer; it is stored as 0-1.
func normalizeFinding(scanID, providerName string, raw provider.RawFinding, confidence float64) (*database.Finding, error) {
	kind := strings.ToLower(strings.TrimSpace(raw.Kind))
	if !validKinds[kind] {
		return nil, fmt.Errorf("unknown finding kind %q from %s", raw.Kind, providerName)
	}

	severity := strings.ToLower(strings.TrimSpace(raw.Severity))
	if !validSeverities[severity] {
		return nil, fmt.Errorf("unknown severity %q from %s", raw.Severity, providerName)
	}

	evidence := make([]database.EvidencePair, 0, len(raw.Evidence))
	for _, pair := range raw.Evidence {
		if pair.Key == "" {
			return nil, fmt.Errorf("evidence pair with empty key from %s", providerName)
		}
		evidence = append(evidence, database.EvidencePair{Key: pair.Key, Value: pair.Value})
	}

	tags := raw.Tags
	if tags == nil {
		tags = []string{}
	}

	observed := raw.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	return &database.Finding{
		ScanID:     scanID,
		Provider:   providerName,
		Kind:       kind,
		Severity:   severity,
		Confidence: clamp(confidence, 0, 100) / 100,
		Evidence:   evidence,
		Tags:       tags,
		URL:        raw.URL,
		ObservedAt: observed,
	}, nil
}
