package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAuditRecord appends one reconciliation audit row.
func (db *DB) CreateAuditRecord(ctx context.Context, a *AuditRecord) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO audit_log (id, scan_id, old_status, new_status, had_results, age_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ScanID, a.OldStatus, a.NewStatus, a.HadResults, a.AgeSeconds, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func (db *DB) ListAuditByScan(ctx context.Context, scanID string) ([]AuditRecord, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, scan_id, old_status, new_status, had_results, age_seconds, created_at
		 FROM audit_log WHERE scan_id = ? ORDER BY created_at ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var a AuditRecord
		if err := rows.Scan(&a.ID, &a.ScanID, &a.OldStatus, &a.NewStatus, &a.HadResults, &a.AgeSeconds, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit row: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// DashboardStats are the headline counters for the dashboard.
type DashboardStats struct {
	ScanCount    int `json:"scan_count"`
	FindingCount int `json:"finding_count"`
	EventCount   int `json:"event_count"`
}

func (db *DB) GetStats(ctx context.Context) (*DashboardStats, error) {
	stats := &DashboardStats{}
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`).Scan(&stats.ScanCount)
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM findings`).Scan(&stats.FindingCount)
	db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scan_events`).Scan(&stats.EventCount)
	return stats, nil
}
