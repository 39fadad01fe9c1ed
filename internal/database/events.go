package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateScanEvent appends one event row. Events are never mutated after
// insert.
func (db *DB) CreateScanEvent(ctx context.Context, e *ScanEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO scan_events (id, scan_id, provider, stage, status, duration_ms, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ScanID, e.Provider, e.Stage, e.Status, e.DurationMs, e.ErrorMessage, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan event: %w", err)
	}
	return nil
}

// ListScanEvents returns a scan's events in creation order, for timeline
// display.
func (db *DB) ListScanEvents(ctx context.Context, scanID string) ([]ScanEvent, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, scan_id, provider, stage, status, duration_ms, error_message, created_at
		 FROM scan_events WHERE scan_id = ? ORDER BY created_at ASC, id ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list scan events: %w", err)
	}
	defer rows.Close()

	var events []ScanEvent
	for rows.Next() {
		var e ScanEvent
		if err := rows.Scan(&e.ID, &e.ScanID, &e.Provider, &e.Stage, &e.Status, &e.DurationMs, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
