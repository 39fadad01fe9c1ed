package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jamesruggles/footprint/internal/config"
	"github.com/jamesruggles/footprint/internal/database"
)

func testReconcilerConfig() config.ReconcilerConfig {
	return config.ReconcilerConfig{
		Interval:         time.Minute,
		StuckThreshold:   15 * time.Minute,
		PendingThreshold: 10 * time.Minute,
		BatchSize:        100,
	}
}

// newStuckReconciler returns a reconciler whose clock reads far enough
// ahead that scans created "now" look stuck.
func newStuckReconciler(db *database.DB, notifier Notifier) *Reconciler {
	r := NewReconciler(db, notifier, testReconcilerConfig())
	r.now = func() time.Time { return time.Now().UTC().Add(20 * time.Minute) }
	return r
}

func TestSweepOnceNoResults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	scan := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "alice@example.com",
		Status: database.ScanRunning, Providers: []string{"p"}, DispatchPending: true,
	}
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("create scan: %v", err)
	}

	notifier := &fakeNotifier{}
	newStuckReconciler(db, notifier).SweepOnce(ctx)

	got, _ := db.GetScan(ctx, scan.ID)
	if got.Status != database.ScanFailedTimeout {
		t.Errorf("status = %s, want failed_timeout", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if got.DispatchPending {
		t.Error("stale dispatch_pending flag not cleared")
	}

	events, _ := db.ListScanEvents(ctx, scan.ID)
	if len(events) != 1 || events[0].Stage != database.StageReconciled || events[0].Provider != "system" {
		t.Errorf("events = %+v, want one system/reconciled", events)
	}
	if events[0].Status != string(database.ScanFailedTimeout) {
		t.Errorf("event status = %q, want the branch taken", events[0].Status)
	}
	if events[0].DurationMs < (19 * time.Minute).Milliseconds() {
		t.Errorf("event duration_ms = %d, want the scan's age (around 20 minutes)", events[0].DurationMs)
	}

	audits, _ := db.ListAuditByScan(ctx, scan.ID)
	if len(audits) != 1 {
		t.Fatalf("audit records = %d, want 1", len(audits))
	}
	a := audits[0]
	if a.OldStatus != "running" || a.NewStatus != "failed_timeout" || a.HadResults {
		t.Errorf("audit = %+v", a)
	}
	if a.AgeSeconds < int64((19 * time.Minute).Seconds()) {
		t.Errorf("age_seconds = %d, want around 20 minutes", a.AgeSeconds)
	}

	if evts := notifier.triggered(); len(evts) != 1 || evts[0] != "scan.reconciled" {
		t.Errorf("notifier events = %v, want [scan.reconciled]", evts)
	}
}

func TestSweepOncePartialResults(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	scan := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "alice@example.com",
		Status: database.ScanRunning, Providers: []string{"p", "q"},
	}
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("create scan: %v", err)
	}
	err := db.CreateFindings(ctx, []database.Finding{{
		ScanID: scan.ID, Provider: "p", Kind: "breach", Severity: "high", Confidence: 0.8,
		Evidence: []database.EvidencePair{{Key: "breach", Value: "x"}}, Tags: []string{},
	}})
	if err != nil {
		t.Fatalf("create finding: %v", err)
	}

	newStuckReconciler(db, nil).SweepOnce(ctx)

	got, _ := db.GetScan(ctx, scan.ID)
	if got.Status != database.ScanCompletePartial {
		t.Errorf("status = %s, want complete_partial", got.Status)
	}

	events, _ := db.ListScanEvents(ctx, scan.ID)
	if len(events) != 1 || events[0].Status != string(database.ScanCompletePartial) {
		t.Errorf("events = %+v, want one complete_partial", events)
	}
	if events[0].DurationMs <= 0 {
		t.Errorf("event duration_ms = %d, want the scan's age", events[0].DurationMs)
	}

	audits, _ := db.ListAuditByScan(ctx, scan.ID)
	if len(audits) != 1 || !audits[0].HadResults {
		t.Errorf("audit = %+v, want had_results", audits)
	}
}

func TestSweepOnceSkipsFreshAndTerminal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	fresh := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "fresh@example.com",
		Status: database.ScanRunning,
	}
	if err := db.CreateScan(ctx, fresh); err != nil {
		t.Fatalf("create scan: %v", err)
	}

	done := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "done@example.com",
		Status: database.ScanPending, CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
	if err := db.CreateScan(ctx, done); err != nil {
		t.Fatalf("create scan: %v", err)
	}
	if _, err := db.UpdateScanStatus(ctx, done.ID, database.ScanComplete); err != nil {
		t.Fatalf("complete scan: %v", err)
	}

	// Real clock: fresh is inside the threshold, done is terminal.
	NewReconciler(db, nil, testReconcilerConfig()).SweepOnce(ctx)

	got, _ := db.GetScan(ctx, fresh.ID)
	if got.Status != database.ScanRunning {
		t.Errorf("fresh scan status = %s, want running", got.Status)
	}
	got, _ = db.GetScan(ctx, done.ID)
	if got.Status != database.ScanComplete {
		t.Errorf("terminal scan status = %s, want complete", got.Status)
	}
}

func TestSweepOnceBatch(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		scan := &database.Scan{
			WorkspaceID: "ws-1", TargetType: "username", TargetValue: "user",
			Status: database.ScanPending,
		}
		if err := db.CreateScan(ctx, scan); err != nil {
			t.Fatalf("create scan: %v", err)
		}
		ids = append(ids, scan.ID)
	}

	newStuckReconciler(db, nil).SweepOnce(ctx)

	for _, id := range ids {
		got, _ := db.GetScan(ctx, id)
		if got.Status != database.ScanFailedTimeout {
			t.Errorf("scan %s status = %s, want failed_timeout", id, got.Status)
		}
	}
}

// faultyStore fails the status update for one scan id, simulating a
// mid-sweep storage error on a single candidate.
type faultyStore struct {
	reconcilerStore
	failID string
}

func (s *faultyStore) UpdateScanStatus(ctx context.Context, id string, to database.ScanStatus) (bool, error) {
	if id == s.failID {
		return false, errors.New("disk I/O error")
	}
	return s.reconcilerStore.UpdateScanStatus(ctx, id, to)
}

func TestSweepOnceIsolatesCandidateFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	broken := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "a@example.com",
		Status: database.ScanRunning,
	}
	healthy := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "b@example.com",
		Status: database.ScanRunning,
	}
	for _, scan := range []*database.Scan{broken, healthy} {
		if err := db.CreateScan(ctx, scan); err != nil {
			t.Fatalf("create scan: %v", err)
		}
	}

	r := newStuckReconciler(db, nil)
	r.db = &faultyStore{reconcilerStore: db, failID: broken.ID}
	r.SweepOnce(ctx)

	got, _ := db.GetScan(ctx, broken.ID)
	if got.Status != database.ScanRunning {
		t.Errorf("broken candidate status = %s, want untouched running", got.Status)
	}
	got, _ = db.GetScan(ctx, healthy.ID)
	if got.Status != database.ScanFailedTimeout {
		t.Errorf("healthy candidate status = %s, want failed_timeout despite sibling failure", got.Status)
	}
}

func TestPendingFlagCleanupIndependent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Old enough for the flag cleanup (10m) but not for the stuck sweep (15m).
	scan := &database.Scan{
		WorkspaceID: "ws-1", TargetType: "email", TargetValue: "alice@example.com",
		Status: database.ScanRunning, DispatchPending: true,
		CreatedAt: time.Now().UTC().Add(-12 * time.Minute),
	}
	if err := db.CreateScan(ctx, scan); err != nil {
		t.Fatalf("create scan: %v", err)
	}

	NewReconciler(db, nil, testReconcilerConfig()).SweepOnce(ctx)

	got, _ := db.GetScan(ctx, scan.ID)
	if got.DispatchPending {
		t.Error("dispatch_pending not cleared past the pending threshold")
	}
	if got.Status != database.ScanRunning {
		t.Errorf("status = %s, want running (below stuck threshold)", got.Status)
	}
}
