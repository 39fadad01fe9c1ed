package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (db *DB) CreateWebhookEndpoint(ctx context.Context, ep *WebhookEndpoint) error {
	if ep.ID == "" {
		ep.ID = uuid.NewString()
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	events, err := json.Marshal(ep.Events)
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO webhook_endpoints (id, url, signing_secret, events, is_active, max_attempts, backoff_multiplier, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.URL, ep.SigningSecret, string(events), ep.IsActive, ep.MaxAttempts, ep.BackoffMultiplier, ep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook endpoint: %w", err)
	}
	return nil
}

func scanEndpointRow(row rowScanner) (*WebhookEndpoint, error) {
	ep := &WebhookEndpoint{}
	var events string
	err := row.Scan(&ep.ID, &ep.URL, &ep.SigningSecret, &events, &ep.IsActive,
		&ep.SuccessCount, &ep.FailureCount, &ep.MaxAttempts, &ep.BackoffMultiplier,
		&ep.LastTriggeredAt, &ep.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(events), &ep.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return ep, nil
}

const endpointCols = `id, url, signing_secret, events, is_active, success_count, failure_count, max_attempts, backoff_multiplier, last_triggered_at, created_at`

func (db *DB) GetWebhookEndpoint(ctx context.Context, id string) (*WebhookEndpoint, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoints WHERE id = ?`, id)
	ep, err := scanEndpointRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook endpoint: %w", err)
	}
	return ep, nil
}

func (db *DB) ListWebhookEndpoints(ctx context.Context) ([]WebhookEndpoint, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoints ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list webhook endpoints: %w", err)
	}
	defer rows.Close()

	var eps []WebhookEndpoint
	for rows.Next() {
		ep, err := scanEndpointRow(rows)
		if err != nil {
			return nil, fmt.Errorf("endpoint row: %w", err)
		}
		eps = append(eps, *ep)
	}
	return eps, rows.Err()
}

// ListActiveEndpoints returns active endpoints subscribed to eventType.
// Subscription filtering happens in Go; the events column is a JSON list.
func (db *DB) ListActiveEndpoints(ctx context.Context, eventType string) ([]WebhookEndpoint, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+endpointCols+` FROM webhook_endpoints WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("list active endpoints: %w", err)
	}
	defer rows.Close()

	var eps []WebhookEndpoint
	for rows.Next() {
		ep, err := scanEndpointRow(rows)
		if err != nil {
			return nil, fmt.Errorf("endpoint row: %w", err)
		}
		for _, ev := range ep.Events {
			if ev == eventType {
				eps = append(eps, *ep)
				break
			}
		}
	}
	return eps, rows.Err()
}

// RecordEndpointOutcome bumps the endpoint's success or failure counter and,
// on success, stamps the last-triggered time.
func (db *DB) RecordEndpointOutcome(ctx context.Context, id string, success bool) error {
	var err error
	if success {
		_, err = db.ExecContext(ctx,
			`UPDATE webhook_endpoints SET success_count = success_count + 1, last_triggered_at = ? WHERE id = ?`,
			time.Now().UTC(), id)
	} else {
		_, err = db.ExecContext(ctx,
			`UPDATE webhook_endpoints SET failure_count = failure_count + 1 WHERE id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("record endpoint outcome: %w", err)
	}
	return nil
}

// --- Deliveries ---

func (db *DB) CreateWebhookDelivery(ctx context.Context, d *WebhookDelivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	if d.Status == "" {
		d.Status = DeliveryPending
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, webhook_endpoint_id, event_type, event_id, payload, status, attempt_number, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.EndpointID, d.EventType, d.EventID, d.Payload, d.Status, d.AttemptNumber, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", err)
	}
	return nil
}

// UpdateWebhookDelivery records the outcome of one attempt.
func (db *DB) UpdateWebhookDelivery(ctx context.Context, d *WebhookDelivery) error {
	d.UpdatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx,
		`UPDATE webhook_deliveries
		 SET status = ?, response_status = ?, response_body = ?, attempt_number = ?, duration_ms = ?, next_retry_at = ?, updated_at = ?
		 WHERE id = ?`,
		d.Status, d.ResponseStatus, d.ResponseBody, d.AttemptNumber, d.DurationMs, d.NextRetryAt, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	return nil
}

const deliveryCols = `id, webhook_endpoint_id, event_type, event_id, payload, status, response_status, response_body, attempt_number, duration_ms, next_retry_at, created_at, updated_at`

func scanDeliveryRow(row rowScanner) (*WebhookDelivery, error) {
	d := &WebhookDelivery{}
	err := row.Scan(&d.ID, &d.EndpointID, &d.EventType, &d.EventID, &d.Payload, &d.Status,
		&d.ResponseStatus, &d.ResponseBody, &d.AttemptNumber, &d.DurationMs,
		&d.NextRetryAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (db *DB) GetWebhookDelivery(ctx context.Context, id string) (*WebhookDelivery, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+deliveryCols+` FROM webhook_deliveries WHERE id = ?`, id)
	d, err := scanDeliveryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook delivery: %w", err)
	}
	return d, nil
}

// ListDueDeliveries returns failed deliveries whose retry time has passed.
func (db *DB) ListDueDeliveries(ctx context.Context, now time.Time, limit int) ([]WebhookDelivery, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+deliveryCols+` FROM webhook_deliveries
		 WHERE status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= ?
		 ORDER BY next_retry_at ASC LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due deliveries: %w", err)
	}
	defer rows.Close()

	var ds []WebhookDelivery
	for rows.Next() {
		d, err := scanDeliveryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("delivery row: %w", err)
		}
		ds = append(ds, *d)
	}
	return ds, rows.Err()
}

// ListDeliveriesByEndpoint returns an endpoint's deliveries, newest first.
func (db *DB) ListDeliveriesByEndpoint(ctx context.Context, endpointID string, limit int) ([]WebhookDelivery, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+deliveryCols+` FROM webhook_deliveries
		 WHERE webhook_endpoint_id = ? ORDER BY created_at DESC LIMIT ?`, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var ds []WebhookDelivery
	for rows.Next() {
		d, err := scanDeliveryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("delivery row: %w", err)
		}
		ds = append(ds, *d)
	}
	return ds, rows.Err()
}
