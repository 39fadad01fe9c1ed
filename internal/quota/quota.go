// Package quota tracks recent per-workspace activity in memory, bounding
// scan submission bursts ahead of the database-backed daily allowance.
package quota

import (
	"sync"
	"time"
)

// cleanupEvery is how many Record calls pass between sweeps of idle entries.
// Cleanup is deterministic, not probabilistic, so tests can drive it.
const cleanupEvery = 64

// Tracker is a bounded in-memory activity map keyed by workspace id.
// Entries with no recent activity are dropped on a periodic sweep.
type Tracker struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	calls   int
	entries map[string][]time.Time

	now func() time.Time // test hook
}

// NewTracker allows up to limit recorded events per key within window.
func NewTracker(limit int, window time.Duration) *Tracker {
	return &Tracker{
		window:  window,
		limit:   limit,
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow reports whether key is under its limit right now.
func (t *Tracker) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.recent(key)) < t.limit
}

// Record notes one event for key. Every cleanupEvery calls the whole map is
// swept and idle keys are dropped, keeping the tracker bounded.
func (t *Tracker) Record(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[key] = append(t.recent(key), t.now())

	t.calls++
	if t.calls%cleanupEvery == 0 {
		t.sweep()
	}
}

// Len returns the number of tracked keys.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// recent returns key's events still inside the window. Caller holds the lock.
func (t *Tracker) recent(key string) []time.Time {
	cutoff := t.now().Add(-t.window)
	events := t.entries[key]
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// sweep drops keys with no events inside the window. Caller holds the lock.
func (t *Tracker) sweep() {
	for key := range t.entries {
		if len(t.recent(key)) == 0 {
			delete(t.entries, key)
		} else {
			t.entries[key] = t.recent(key)
		}
	}
}
