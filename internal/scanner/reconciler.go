package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/jamesruggles/footprint/internal/config"
	"github.com/jamesruggles/footprint/internal/database"
)

// reconcilerStore is the subset of database operations the reconciler uses.
type reconcilerStore interface {
	ListStuckScans(ctx context.Context, cutoff time.Time, limit int) ([]database.Scan, error)
	ClearStalePendingFlags(ctx context.Context, cutoff time.Time) (int64, error)
	CountFindingsByScan(ctx context.Context, scanID string) (int, error)
	UpdateScanStatus(ctx context.Context, id string, to database.ScanStatus) (bool, error)
	CreateScanEvent(ctx context.Context, e *database.ScanEvent) error
	CreateAuditRecord(ctx context.Context, a *database.AuditRecord) error
}

// Reconciler sweeps for scans whose fan-out never reported back and closes
// them out. Anything non-terminal and older than the stuck threshold is
// finalized to complete_partial when at least one finding landed, or
// failed_timeout when none did.
type Reconciler struct {
	db       reconcilerStore
	notifier Notifier
	cfg      config.ReconcilerConfig

	now func() time.Time
}

func NewReconciler(db *database.DB, notifier Notifier, cfg config.ReconcilerConfig) *Reconciler {
	return &Reconciler{
		db:       db,
		notifier: notifier,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.Info("reconciler started", "interval", r.cfg.Interval, "stuck_threshold", r.cfg.StuckThreshold)
	for {
		select {
		case <-ctx.Done():
			slog.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single reconciliation pass. A failure on one candidate
// never blocks the rest of the batch, and the stale-flag cleanup runs even
// when the stuck sweep fails entirely.
func (r *Reconciler) SweepOnce(ctx context.Context) {
	now := r.now()

	candidates, err := r.db.ListStuckScans(ctx, now.Add(-r.cfg.StuckThreshold), r.cfg.BatchSize)
	if err != nil {
		slog.Error("list stuck scans failed", "error", err)
	} else {
		reconciled := 0
		for _, scan := range candidates {
			if err := r.reconcile(ctx, &scan, now); err != nil {
				slog.Error("reconcile scan failed", "scan_id", scan.ID, "error", err)
				continue
			}
			reconciled++
		}
		if len(candidates) > 0 {
			slog.Info("reconciliation pass done", "candidates", len(candidates), "reconciled", reconciled)
		}
	}

	cleared, err := r.db.ClearStalePendingFlags(ctx, now.Add(-r.cfg.PendingThreshold))
	if err != nil {
		slog.Error("clear stale dispatch flags failed", "error", err)
	} else if cleared > 0 {
		slog.Info("cleared stale dispatch flags", "count", cleared)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, scan *database.Scan, now time.Time) error {
	count, err := r.db.CountFindingsByScan(ctx, scan.ID)
	if err != nil {
		return err
	}

	target := database.ScanFailedTimeout
	if count > 0 {
		target = database.ScanCompletePartial
	}

	applied, err := r.db.UpdateScanStatus(ctx, scan.ID, target)
	if err != nil {
		return err
	}
	if !applied {
		// Someone else finalized it between the listing and now.
		return nil
	}

	age := now.Sub(scan.CreatedAt)
	event := &database.ScanEvent{
		ScanID:     scan.ID,
		Provider:   "system",
		Stage:      database.StageReconciled,
		Status:     string(target),
		DurationMs: age.Milliseconds(),
	}
	if err := r.db.CreateScanEvent(ctx, event); err != nil {
		slog.Warn("record reconcile event failed", "scan_id", scan.ID, "error", err)
	}

	audit := &database.AuditRecord{
		ScanID:     scan.ID,
		OldStatus:  string(scan.Status),
		NewStatus:  string(target),
		HadResults: count > 0,
		AgeSeconds: int64(age.Seconds()),
	}
	if err := r.db.CreateAuditRecord(ctx, audit); err != nil {
		slog.Warn("record reconcile audit failed", "scan_id", scan.ID, "error", err)
	}

	if r.notifier != nil {
		r.notifier.Trigger(ctx, "scan.reconciled", scan.ID, map[string]any{
			"scan_id":     scan.ID,
			"old_status":  string(scan.Status),
			"new_status":  string(target),
			"had_results": count > 0,
		})
	}

	slog.Info("reconciled stuck scan", "scan_id", scan.ID, "old_status", scan.Status, "new_status", target, "findings", count)
	return nil
}
