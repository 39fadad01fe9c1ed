package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesruggles/footprint/internal/config"
	"github.com/jamesruggles/footprint/internal/database"
)

// maxResponseBody bounds how much of a receiver's response we persist.
const maxResponseBody = 1024

// Engine delivers signed webhook events to subscribed endpoints. Every
// attempt is recorded as a delivery row; failed attempts with budget left
// get a retry time and are picked up by the worker loop.
type Engine struct {
	db     *database.DB
	cfg    config.WebhookConfig
	client *http.Client

	now func() time.Time
}

func NewEngine(db *database.DB, cfg config.WebhookConfig) *Engine {
	return &Engine{
		db:     db,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// envelope is the wire shape every event is wrapped in.
type envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

// Trigger fans the event out to every active endpoint subscribed to
// eventType. Endpoints are attempted concurrently and in isolation: one
// unreachable receiver never delays or fails the others.
func (e *Engine) Trigger(ctx context.Context, eventType, eventID string, payload any) {
	endpoints, err := e.db.ListActiveEndpoints(ctx, eventType)
	if err != nil {
		slog.Error("list webhook endpoints failed", "event_type", eventType, "error", err)
		return
	}
	if len(endpoints) == 0 {
		return
	}

	body, err := json.Marshal(envelope{
		EventType: eventType,
		EventID:   eventID,
		Timestamp: e.now().Format(time.RFC3339),
		Data:      payload,
	})
	if err != nil {
		slog.Error("marshal webhook payload failed", "event_type", eventType, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep database.WebhookEndpoint) {
			defer wg.Done()
			e.deliver(ctx, &ep, eventType, eventID, body)
		}(ep)
	}
	wg.Wait()
}

func (e *Engine) deliver(ctx context.Context, ep *database.WebhookEndpoint, eventType, eventID string, body []byte) {
	d := &database.WebhookDelivery{
		ID:         uuid.NewString(),
		EndpointID: ep.ID,
		EventType:  eventType,
		EventID:    eventID,
		Payload:    string(body),
		Status:     database.DeliveryPending,
	}
	if err := e.db.CreateWebhookDelivery(ctx, d); err != nil {
		slog.Error("create webhook delivery failed", "endpoint_id", ep.ID, "error", err)
		return
	}
	e.attempt(ctx, ep, d)
}

// attempt performs one HTTP POST for the delivery and records the outcome.
// On failure with attempts remaining, the next retry is scheduled at
// multiplier^attempt minutes out.
func (e *Engine) attempt(ctx context.Context, ep *database.WebhookEndpoint, d *database.WebhookDelivery) {
	body := []byte(d.Payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		e.recordFailure(ctx, ep, d, 0, err.Error(), 0)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", Sign(ep.SigningSecret, body))
	req.Header.Set("X-Webhook-Event", d.EventType)
	req.Header.Set("X-Webhook-Delivery", d.ID)

	start := e.now()
	resp, err := e.client.Do(req)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		e.recordFailure(ctx, ep, d, 0, err.Error(), duration)
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.recordFailure(ctx, ep, d, resp.StatusCode, string(respBody), duration)
		return
	}

	d.Status = database.DeliveryDelivered
	d.ResponseStatus = resp.StatusCode
	d.ResponseBody = string(respBody)
	d.AttemptNumber++
	d.DurationMs = duration
	d.NextRetryAt = nil
	if err := e.db.UpdateWebhookDelivery(ctx, d); err != nil {
		slog.Error("update webhook delivery failed", "delivery_id", d.ID, "error", err)
	}
	if err := e.db.RecordEndpointOutcome(ctx, ep.ID, true); err != nil {
		slog.Warn("record endpoint outcome failed", "endpoint_id", ep.ID, "error", err)
	}
	slog.Info("webhook delivered", "endpoint_id", ep.ID, "event_type", d.EventType, "attempt", d.AttemptNumber, "duration_ms", duration)
}

func (e *Engine) recordFailure(ctx context.Context, ep *database.WebhookEndpoint, d *database.WebhookDelivery, status int, respBody string, duration int64) {
	d.Status = database.DeliveryFailed
	d.ResponseStatus = status
	if len(respBody) > maxResponseBody {
		respBody = respBody[:maxResponseBody]
	}
	d.ResponseBody = respBody
	d.AttemptNumber++
	d.DurationMs = duration

	maxAttempts := ep.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = e.cfg.MaxAttempts
	}
	multiplier := ep.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = e.cfg.BackoffMultiplier
	}

	if d.AttemptNumber < maxAttempts {
		next := e.now().Add(time.Duration(math.Pow(multiplier, float64(d.AttemptNumber)) * float64(time.Minute)))
		d.NextRetryAt = &next
	} else {
		d.NextRetryAt = nil
	}

	if err := e.db.UpdateWebhookDelivery(ctx, d); err != nil {
		slog.Error("update webhook delivery failed", "delivery_id", d.ID, "error", err)
	}
	if err := e.db.RecordEndpointOutcome(ctx, ep.ID, false); err != nil {
		slog.Warn("record endpoint outcome failed", "endpoint_id", ep.ID, "error", err)
	}
	slog.Warn("webhook delivery failed", "endpoint_id", ep.ID, "event_type", d.EventType,
		"attempt", d.AttemptNumber, "status", status, "retry_scheduled", d.NextRetryAt != nil)
}

// RetryNow re-attempts a delivery immediately, regardless of its scheduled
// retry time. Used by the manual retry endpoint.
func (e *Engine) RetryNow(ctx context.Context, deliveryID string) error {
	d, err := e.db.GetWebhookDelivery(ctx, deliveryID)
	if err != nil {
		return err
	}
	if d == nil {
		return fmt.Errorf("delivery %s not found", deliveryID)
	}
	if d.Status == database.DeliveryDelivered {
		return fmt.Errorf("delivery %s already delivered", deliveryID)
	}
	ep, err := e.db.GetWebhookEndpoint(ctx, d.EndpointID)
	if err != nil {
		return err
	}
	if ep == nil {
		return fmt.Errorf("endpoint %s not found", d.EndpointID)
	}
	e.attempt(ctx, ep, d)
	return nil
}

// Run drains due retries on a fixed interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.WorkerInterval)
	defer ticker.Stop()

	slog.Info("webhook worker started", "interval", e.cfg.WorkerInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("webhook worker stopped")
			return
		case <-ticker.C:
			e.ProcessDue(ctx)
		}
	}
}

// ProcessDue retries every failed delivery whose retry time has passed.
func (e *Engine) ProcessDue(ctx context.Context) {
	due, err := e.db.ListDueDeliveries(ctx, e.now(), 50)
	if err != nil {
		slog.Error("list due deliveries failed", "error", err)
		return
	}
	for _, d := range due {
		ep, err := e.db.GetWebhookEndpoint(ctx, d.EndpointID)
		if err != nil || ep == nil {
			slog.Warn("skipping delivery with missing endpoint", "delivery_id", d.ID, "endpoint_id", d.EndpointID)
			continue
		}
		if !ep.IsActive {
			continue
		}
		e.attempt(ctx, ep, &d)
	}
}
