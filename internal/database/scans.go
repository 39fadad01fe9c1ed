package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (db *DB) CreateScan(ctx context.Context, s *Scan) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = ScanPending
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	providers, err := json.Marshal(s.Providers)
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO scans (id, workspace_id, target_type, target_value, status, providers_queried, dispatch_pending, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.WorkspaceID, s.TargetType, s.TargetValue, s.Status, string(providers), s.DispatchPending, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan: %w", err)
	}
	return nil
}

func (db *DB) GetScan(ctx context.Context, id string) (*Scan, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, workspace_id, target_type, target_value, status, providers_queried, dispatch_pending, created_at, completed_at
		 FROM scans WHERE id = ?`, id)
	s, err := scanScanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scan: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScanRow(row rowScanner) (*Scan, error) {
	s := &Scan{}
	var providers string
	err := row.Scan(&s.ID, &s.WorkspaceID, &s.TargetType, &s.TargetValue, &s.Status, &providers, &s.DispatchPending, &s.CreatedAt, &s.CompletedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(providers), &s.Providers); err != nil {
		return nil, fmt.Errorf("unmarshal providers: %w", err)
	}
	return s, nil
}

// UpdateScanStatus transitions a scan using the transition table. The update
// is conditional on the current status still being an allowed source, so a
// concurrent writer that won the race makes this a no-op. Returns whether
// the transition was applied.
func (db *DB) UpdateScanStatus(ctx context.Context, id string, to ScanStatus) (bool, error) {
	sources, ok := scanTransitions[to]
	if !ok {
		return false, fmt.Errorf("illegal scan status %q", to)
	}

	query := `UPDATE scans SET status = ?`
	args := []any{string(to)}
	if to.Terminal() {
		query += `, completed_at = ?`
		args = append(args, time.Now().UTC())
	}
	query += ` WHERE id = ? AND status IN (?` + repeat(", ?", len(sources)-1) + `)`
	args = append(args, id)
	for _, src := range sources {
		args = append(args, string(src))
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("update scan status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}

// ListStuckScans returns non-terminal scans created before cutoff, oldest
// first, bounded by limit.
func (db *DB) ListStuckScans(ctx context.Context, cutoff time.Time, limit int) ([]Scan, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, workspace_id, target_type, target_value, status, providers_queried, dispatch_pending, created_at, completed_at
		 FROM scans WHERE status IN ('pending', 'running') AND created_at < ?
		 ORDER BY created_at ASC LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stuck scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		s, err := scanScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, *s)
	}
	return scans, rows.Err()
}

func (db *DB) ListRecentScans(ctx context.Context, limit int) ([]Scan, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, workspace_id, target_type, target_value, status, providers_queried, dispatch_pending, created_at, completed_at
		 FROM scans ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		s, err := scanScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		scans = append(scans, *s)
	}
	return scans, rows.Err()
}

// CountScansSince counts scans a workspace created at or after since.
// Backs the daily quota check.
func (db *DB) CountScansSince(ctx context.Context, workspaceID string, since time.Time) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM scans WHERE workspace_id = ? AND created_at >= ?`,
		workspaceID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count scans: %w", err)
	}
	return n, nil
}

// ClearDispatchPending clears the dispatch-pending flag on one scan.
func (db *DB) ClearDispatchPending(ctx context.Context, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE scans SET dispatch_pending = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("clear dispatch pending: %w", err)
	}
	return nil
}

// ClearStalePendingFlags clears dispatch-pending flags on scans created
// before cutoff. Returns how many rows were touched.
func (db *DB) ClearStalePendingFlags(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE scans SET dispatch_pending = 0 WHERE dispatch_pending = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear stale pending flags: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
