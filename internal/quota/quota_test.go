package quota

import (
	"fmt"
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	tr := NewTracker(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !tr.Allow("ws-1") {
			t.Fatalf("Allow refused at %d events, limit 3", i)
		}
		tr.Record("ws-1")
	}
	if tr.Allow("ws-1") {
		t.Error("Allow granted at limit")
	}
	if !tr.Allow("ws-2") {
		t.Error("other key affected by ws-1's events")
	}
}

func TestWindowExpiry(t *testing.T) {
	tr := NewTracker(1, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	tr.Record("ws-1")
	if tr.Allow("ws-1") {
		t.Error("Allow granted at limit")
	}

	now = now.Add(2 * time.Minute)
	if !tr.Allow("ws-1") {
		t.Error("event outside the window still counted")
	}
}

func TestDeterministicCleanup(t *testing.T) {
	tr := NewTracker(1000, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return now }

	// 63 distinct idle-soon keys; no sweep has happened yet.
	for i := 0; i < 63; i++ {
		tr.Record(fmt.Sprintf("ws-%d", i))
	}
	if tr.Len() != 63 {
		t.Fatalf("len = %d, want 63", tr.Len())
	}

	// All 63 go idle; the 64th Record triggers the sweep and drops them.
	now = now.Add(2 * time.Minute)
	tr.Record("ws-fresh")
	if tr.Len() != 1 {
		t.Errorf("len after sweep = %d, want 1 (only the fresh key)", tr.Len())
	}
}
