package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/coord/internal/ports/secondary"
)

// SpendLedger implements secondary.SpendLedger with SQLite. Append-only.
type SpendLedger struct {
	db *sql.DB
}

// NewSpendLedger creates a new SQLite spend ledger.
func NewSpendLedger(db *sql.DB) *SpendLedger {
	return &SpendLedger{db: db}
}

// Append records one charge attempt.
func (r *SpendLedger) Append(ctx context.Context, entry *secondary.SpendEntry) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO spend_entries (id, instance_id, amount, category, allowed, charged_at) VALUES (?, ?, ?, ?, ?, ?)",
		entry.ID, entry.InstanceID, entry.Amount, entry.Category, boolToInt(entry.Allowed), entry.ChargedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append spend entry: %w", err)
	}
	return nil
}

// List retrieves entries for an instance, newest first.
func (r *SpendLedger) List(ctx context.Context, instanceID, category string, since time.Time) ([]*secondary.SpendEntry, error) {
	query := `SELECT id, instance_id, amount, category, allowed, charged_at
		FROM spend_entries WHERE instance_id = ? AND charged_at >= ?`
	args := []any{instanceID, since}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY charged_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list spend entries: %w", err)
	}
	defer rows.Close()

	var entries []*secondary.SpendEntry
	for rows.Next() {
		var (
			entry   secondary.SpendEntry
			allowed int
		)
		if err := rows.Scan(&entry.ID, &entry.InstanceID, &entry.Amount, &entry.Category, &allowed, &entry.ChargedAt); err != nil {
			return nil, fmt.Errorf("failed to scan spend entry: %w", err)
		}
		entry.Allowed = allowed == 1
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// Ensure SpendLedger implements the interface.
var _ secondary.SpendLedger = (*SpendLedger)(nil)
