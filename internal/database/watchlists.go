package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (db *DB) CreateWatchlist(ctx context.Context, w *Watchlist) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	rules, err := json.Marshal(w.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO watchlists (id, name, is_active, rules, created_at) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.IsActive, string(rules), w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert watchlist: %w", err)
	}
	return nil
}

func scanWatchlistRow(row rowScanner) (*Watchlist, error) {
	w := &Watchlist{}
	var rules string
	err := row.Scan(&w.ID, &w.Name, &w.IsActive, &rules, &w.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(rules), &w.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return w, nil
}

func (db *DB) GetWatchlist(ctx context.Context, id string) (*Watchlist, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, name, is_active, rules, created_at FROM watchlists WHERE id = ?`, id)
	w, err := scanWatchlistRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get watchlist: %w", err)
	}
	return w, nil
}

func (db *DB) ListWatchlists(ctx context.Context, activeOnly bool) ([]Watchlist, error) {
	query := `SELECT id, name, is_active, rules, created_at FROM watchlists`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list watchlists: %w", err)
	}
	defer rows.Close()

	var lists []Watchlist
	for rows.Next() {
		w, err := scanWatchlistRow(rows)
		if err != nil {
			return nil, fmt.Errorf("watchlist row: %w", err)
		}
		lists = append(lists, *w)
	}
	return lists, rows.Err()
}

// --- Entity nodes ---

func (db *DB) CreateEntityNode(ctx context.Context, e *EntityNode) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO entity_nodes (id, entity_type, entity_value, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.EntityType, e.EntityValue, string(metadata), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entity node: %w", err)
	}
	return nil
}

// ListEntityNodes returns candidate entities for rule evaluation, bounded by
// limit.
func (db *DB) ListEntityNodes(ctx context.Context, limit int) ([]EntityNode, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, entity_type, entity_value, metadata, created_at
		 FROM entity_nodes ORDER BY created_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list entity nodes: %w", err)
	}
	defer rows.Close()

	var nodes []EntityNode
	for rows.Next() {
		var e EntityNode
		var metadata string
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityValue, &metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("entity row: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		nodes = append(nodes, e)
	}
	return nodes, rows.Err()
}

// --- Membership ---

// ListMemberIDs returns the entity ids already in the watchlist.
func (db *DB) ListMemberIDs(ctx context.Context, watchlistID string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT entity_id FROM watchlist_members WHERE watchlist_id = ?`, watchlistID)
	if err != nil {
		return nil, fmt.Errorf("list member ids: %w", err)
	}
	defer rows.Close()

	members := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("member row: %w", err)
		}
		members[id] = true
	}
	return members, rows.Err()
}

// AddMembers inserts entity ids into the watchlist. Already-present members
// are ignored, so the call is idempotent. Returns the number of rows
// actually inserted.
func (db *DB) AddMembers(ctx context.Context, watchlistID string, entityIDs []string) (int64, error) {
	if len(entityIDs) == 0 {
		return 0, nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO watchlist_members (watchlist_id, entity_id, added_at) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	now := time.Now().UTC()
	for _, id := range entityIDs {
		res, err := stmt.ExecContext(ctx, watchlistID, id, now)
		if err != nil {
			return 0, fmt.Errorf("exec: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
