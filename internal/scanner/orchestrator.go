package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jamesruggles/footprint/internal/config"
	"github.com/jamesruggles/footprint/internal/database"
	"github.com/jamesruggles/footprint/internal/provider"
	"github.com/jamesruggles/footprint/internal/quota"
)

// Broadcaster pushes scan events to connected WebSocket clients.
type Broadcaster interface {
	Broadcast(scanID string, event database.ScanEvent)
}

// Notifier fires outbound webhook events on scan transitions.
type Notifier interface {
	Trigger(ctx context.Context, eventType, eventID string, payload any)
}

// Request is one scan submission.
type Request struct {
	ScanID      string   `json:"scanId,omitempty"`
	Type        string   `json:"type"`
	Value       string   `json:"value"`
	WorkspaceID string   `json:"workspaceId"`
	Providers   []string `json:"providers,omitempty"`
}

// Ack is the immediate answer to a scan submission. Provider results stream
// in asynchronously; the caller never blocks on them.
type Ack struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"` // queued | started
}

// Orchestrator drives scans from creation through provider fan-out.
type Orchestrator struct {
	db          *database.DB
	registry    *provider.Registry
	broadcaster Broadcaster
	notifier    Notifier
	cfg         config.ScanConfig
	limiter     *quota.Tracker
}

func NewOrchestrator(db *database.DB, registry *provider.Registry, broadcaster Broadcaster, notifier Notifier, cfg config.ScanConfig) *Orchestrator {
	var limiter *quota.Tracker
	if cfg.BurstLimit > 0 {
		limiter = quota.NewTracker(cfg.BurstLimit, cfg.BurstWindow)
	}
	return &Orchestrator{
		db:          db,
		registry:    registry,
		broadcaster: broadcaster,
		notifier:    notifier,
		cfg:         cfg,
		limiter:     limiter,
	}
}

// StartScan validates the request, creates the scan record, and kicks off
// the provider fan-out. It returns as soon as dispatch has been initiated:
// "started" when the fan-out began inside the ack window, "queued" when the
// window elapsed first. A slow acknowledgment is never treated as failure;
// the scan proceeds in the background either way.
func (o *Orchestrator) StartScan(ctx context.Context, req Request) (*Ack, error) {
	if req.WorkspaceID == "" {
		return nil, &ValidationError{Field: "workspaceId", Reason: "cannot be empty"}
	}
	if err := validateTarget(req.Type, req.Value); err != nil {
		return nil, err
	}

	if o.limiter != nil && !o.limiter.Allow(req.WorkspaceID) {
		return nil, &QuotaExceededError{WorkspaceID: req.WorkspaceID, Limit: o.cfg.BurstLimit}
	}
	if o.cfg.DailyQuota > 0 {
		count, err := o.db.CountScansSince(ctx, req.WorkspaceID, time.Now().UTC().Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		if count >= o.cfg.DailyQuota {
			return nil, &QuotaExceededError{WorkspaceID: req.WorkspaceID, Limit: o.cfg.DailyQuota}
		}
	}

	providers, err := o.registry.Select(req.Providers, o.cfg.DefaultProviders, req.Type)
	if err != nil {
		return nil, &ValidationError{Field: "providers", Reason: err.Error()}
	}
	if len(providers) == 0 {
		return nil, &ValidationError{Field: "providers", Reason: "no provider supports target type " + req.Type}
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}

	scan := &database.Scan{
		ID:              req.ScanID,
		WorkspaceID:     req.WorkspaceID,
		TargetType:      req.Type,
		TargetValue:     req.Value,
		Status:          database.ScanPending,
		Providers:       names,
		DispatchPending: true,
	}
	if err := o.db.CreateScan(ctx, scan); err != nil {
		return nil, err
	}
	if o.limiter != nil {
		o.limiter.Record(req.WorkspaceID)
	}

	started := make(chan struct{})
	go o.run(scan, providers, started)

	select {
	case <-started:
		return &Ack{ScanID: scan.ID, Status: "started"}, nil
	case <-time.After(o.cfg.AckWait):
		return &Ack{ScanID: scan.ID, Status: "queued"}, nil
	case <-ctx.Done():
		// Caller gave up waiting; the scan still runs.
		return &Ack{ScanID: scan.ID, Status: "queued"}, nil
	}
}

// run executes the provider fan-out. Detached from the request context:
// the scan's lifetime is independent of the caller's.
func (o *Orchestrator) run(scan *database.Scan, providers []provider.Provider, started chan<- struct{}) {
	ctx := context.Background()

	for _, p := range providers {
		event := &database.ScanEvent{
			ScanID:   scan.ID,
			Provider: p.Name(),
			Stage:    database.StageDispatched,
			Status:   "ok",
		}
		if err := o.db.CreateScanEvent(ctx, event); err != nil {
			slog.Error("record dispatch event failed", "scan_id", scan.ID, "provider", p.Name(), "error", err)
		}
		o.broadcast(scan.ID, event)
	}

	if _, err := o.db.UpdateScanStatus(ctx, scan.ID, database.ScanRunning); err != nil {
		slog.Error("mark scan running failed", "scan_id", scan.ID, "error", err)
	}
	if err := o.db.ClearDispatchPending(ctx, scan.ID); err != nil {
		slog.Warn("clear dispatch pending failed", "scan_id", scan.ID, "error", err)
	}
	close(started)

	tracker := newResultTracker(len(providers))
	var wg sync.WaitGroup
	for _, p := range providers {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()
			o.dispatch(ctx, scan, p, tracker)
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		applied, err := o.db.UpdateScanStatus(ctx, scan.ID, database.ScanComplete)
		if err != nil {
			slog.Error("complete scan failed", "scan_id", scan.ID, "error", err)
			return
		}
		if applied {
			o.notify(ctx, "scan.completed", scan.ID, map[string]any{
				"scan_id": scan.ID,
				"status":  string(database.ScanComplete),
			})
		}
	case <-time.After(o.cfg.WaitWindow):
		// Stragglers keep writing their own events; the reconciler will
		// close the scan out later.
		slog.Info("scan wait window elapsed", "scan_id", scan.ID)
	}
}

// dispatch invokes one provider under its own timeout budget and records
// the outcome. Provider failures stay scoped to this provider's event; a
// slow or broken adapter never affects its siblings.
func (o *Orchestrator) dispatch(ctx context.Context, scan *database.Scan, p provider.Provider, tracker *resultTracker) {
	pctx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	start := time.Now()
	target := provider.Target{Type: scan.TargetType, Value: scan.TargetValue}
	raws, err := p.Invoke(pctx, target)
	duration := time.Since(start)

	if err != nil {
		status := "error"
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			status = "timeout"
		}
		event := &database.ScanEvent{
			ScanID:       scan.ID,
			Provider:     p.Name(),
			Stage:        database.StageFailed,
			Status:       status,
			DurationMs:   duration.Milliseconds(),
			ErrorMessage: err.Error(),
		}
		if err := o.db.CreateScanEvent(ctx, event); err != nil {
			slog.Error("record failure event failed", "scan_id", scan.ID, "provider", p.Name(), "error", err)
		}
		o.broadcast(scan.ID, event)
		slog.Warn("provider failed", "scan_id", scan.ID, "provider", p.Name(), "status", status, "error", err)
		return
	}

	findings := tracker.score(scan, p.Name(), raws)
	if err := o.db.CreateFindings(ctx, findings); err != nil {
		slog.Error("persist findings failed", "scan_id", scan.ID, "provider", p.Name(), "error", err)
	}

	event := &database.ScanEvent{
		ScanID:     scan.ID,
		Provider:   p.Name(),
		Stage:      database.StageCompleted,
		Status:     "ok",
		DurationMs: duration.Milliseconds(),
	}
	if err := o.db.CreateScanEvent(ctx, event); err != nil {
		slog.Error("record completion event failed", "scan_id", scan.ID, "provider", p.Name(), "error", err)
	}
	o.broadcast(scan.ID, event)
	slog.Info("provider completed", "scan_id", scan.ID, "provider", p.Name(), "findings", len(findings), "duration", duration)
}

func (o *Orchestrator) broadcast(scanID string, event *database.ScanEvent) {
	if o.broadcaster != nil {
		o.broadcaster.Broadcast(scanID, *event)
	}
}

func (o *Orchestrator) notify(ctx context.Context, eventType, eventID string, payload any) {
	if o.notifier != nil {
		o.notifier.Trigger(ctx, eventType, eventID, payload)
	}
}

// resultTracker accumulates cross-provider state as results arrive so each
// finding's confidence can account for sibling agreement. Guarded by its
// own mutex: providers report concurrently.
type resultTracker struct {
	mu            sync.Mutex
	queried       int
	kindProviders map[string]map[string]bool
	kindFields    map[string][][]string
}

func newResultTracker(queried int) *resultTracker {
	return &resultTracker{
		queried:       queried,
		kindProviders: make(map[string]map[string]bool),
		kindFields:    make(map[string][][]string),
	}
}

// score converts one provider's raw findings into persisted-ready findings,
// computing each one's confidence against the sibling snapshot at this
// moment. Malformed raw findings are dropped with a warning.
func (t *resultTracker) score(scan *database.Scan, providerName string, raws []provider.RawFinding) []database.Finding {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Count this provider's social hits once; the cross-platform bonus is
	// "how many other platforms also had a profile".
	socialHits := 0
	for _, raw := range raws {
		if raw.Kind == "social_media" {
			socialHits++
		}
	}

	var findings []database.Finding
	for _, raw := range raws {
		siblings := t.kindFields[raw.Kind]

		var confidence float64
		if raw.Kind == "social_media" {
			confidence = socialProfileConfidence(true, raw.Signals, socialHits-1)
		} else {
			if t.kindProviders[raw.Kind] == nil {
				t.kindProviders[raw.Kind] = make(map[string]bool)
			}
			t.kindProviders[raw.Kind][providerName] = true
			agreeing := len(t.kindProviders[raw.Kind])
			confidence = calculateFinalConfidence(agreeing, t.queried, raw.Signals, siblings)
		}

		f, err := normalizeFinding(scan.ID, providerName, raw, confidence)
		if err != nil {
			slog.Warn("rejected malformed finding", "scan_id", scan.ID, "provider", providerName, "error", err)
			continue
		}
		findings = append(findings, *f)
		t.kindFields[raw.Kind] = append(t.kindFields[raw.Kind], raw.Signals.Fields)
	}
	return findings
}
