package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFindings batch-inserts findings in one transaction.
func (db *DB) CreateFindings(ctx context.Context, findings []Finding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO findings (id, scan_id, provider, kind, severity, confidence, evidence, tags, url, observed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range findings {
		f := &findings[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now().UTC()
		}
		evidence, err := json.Marshal(f.Evidence)
		if err != nil {
			return fmt.Errorf("marshal evidence: %w", err)
		}
		tags, err := json.Marshal(f.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			f.ID, f.ScanID, f.Provider, f.Kind, f.Severity, f.Confidence,
			string(evidence), string(tags), f.URL, f.ObservedAt, f.CreatedAt); err != nil {
			return fmt.Errorf("exec: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) ListFindingsByScan(ctx context.Context, scanID string) ([]Finding, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, scan_id, provider, kind, severity, confidence, evidence, tags, url, observed_at, created_at
		 FROM findings WHERE scan_id = ? ORDER BY created_at ASC, id ASC`, scanID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var findings []Finding
	for rows.Next() {
		var f Finding
		var evidence, tags string
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Provider, &f.Kind, &f.Severity, &f.Confidence,
			&evidence, &tags, &f.URL, &f.ObservedAt, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("finding row: %w", err)
		}
		if err := json.Unmarshal([]byte(evidence), &f.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// CountFindingsByScan reports whether and how many findings a scan produced.
// The reconciler branches on this.
func (db *DB) CountFindingsByScan(ctx context.Context, scanID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM findings WHERE scan_id = ?`, scanID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return n, nil
}
