package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// LifecycleRepository implements secondary.LifecycleRepository with SQLite.
type LifecycleRepository struct {
	db *sql.DB
}

// NewLifecycleRepository creates a new SQLite lifecycle repository.
func NewLifecycleRepository(db *sql.DB) *LifecycleRepository {
	return &LifecycleRepository{db: db}
}

// GetRecord retrieves the lifecycle record for an instance.
func (r *LifecycleRepository) GetRecord(ctx context.Context, instanceID string) (*models.LifecycleRecord, error) {
	var (
		rec         models.LifecycleRecord
		state       string
		lastErrorAt sql.NullTime
		clearance   int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT instance_id, current_state, error_count, last_error_at,
			maintenance_count, manual_clearance, version, updated_at
		 FROM lifecycle_records WHERE instance_id = ?`,
		instanceID,
	).Scan(&rec.InstanceID, &state, &rec.ErrorCount, &lastErrorAt,
		&rec.MaintenanceCount, &clearance, &rec.Version, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("lifecycle record %s: %w", instanceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lifecycle record: %w", err)
	}
	rec.CurrentState = models.LifecycleState(state)
	rec.ManualClearance = clearance == 1
	if lastErrorAt.Valid {
		rec.LastErrorAt = &lastErrorAt.Time
	}
	return &rec, nil
}

// RecordTransition writes the updated record and appends the event in one
// transaction, guarded by the record version.
func (r *LifecycleRepository) RecordTransition(ctx context.Context, record *models.LifecycleRecord, event *models.LifecycleEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var lastErrorAt sql.NullTime
	if record.LastErrorAt != nil {
		lastErrorAt = sql.NullTime{Time: *record.LastErrorAt, Valid: true}
	}
	clearance := 0
	if record.ManualClearance {
		clearance = 1
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE lifecycle_records SET
			current_state = ?, error_count = ?, last_error_at = ?,
			maintenance_count = ?, manual_clearance = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE instance_id = ? AND version = ?`,
		string(record.CurrentState), record.ErrorCount, lastErrorAt,
		record.MaintenanceCount, clearance, record.InstanceID, record.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update lifecycle record: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		// New instance or stale version: try insert, else conflict.
		if _, insErr := tx.ExecContext(ctx,
			`INSERT INTO lifecycle_records
				(instance_id, current_state, error_count, last_error_at, maintenance_count, manual_clearance)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			record.InstanceID, string(record.CurrentState), record.ErrorCount,
			lastErrorAt, record.MaintenanceCount, clearance,
		); insErr != nil {
			return fmt.Errorf("lifecycle record %s: %w", record.InstanceID, models.ErrVersionConflict)
		}
	}

	if err := appendLifecycleEvent(ctx, tx, event); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transition: %w", err)
	}
	return nil
}

// AppendEvent appends a lifecycle event without touching the record.
func (r *LifecycleRepository) AppendEvent(ctx context.Context, event *models.LifecycleEvent) error {
	return appendLifecycleEvent(ctx, r.db, event)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func appendLifecycleEvent(ctx context.Context, ex execer, event *models.LifecycleEvent) error {
	success := 0
	if event.Success {
		success = 1
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO lifecycle_events
			(id, instance_id, from_state, to_state, triggered_by, success, detail, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.InstanceID, string(event.FromState), string(event.ToState),
		string(event.TriggeredBy), success, event.Detail, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append lifecycle event: %w", err)
	}
	return nil
}

// ListEvents retrieves lifecycle events newest first.
func (r *LifecycleRepository) ListEvents(ctx context.Context, instanceID string, limit int) ([]*models.LifecycleEvent, error) {
	query := `SELECT id, instance_id, from_state, to_state, triggered_by, success, detail, occurred_at
		FROM lifecycle_events WHERE instance_id = ? ORDER BY occurred_at DESC`
	args := []any{instanceID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle events: %w", err)
	}
	defer rows.Close()

	var events []*models.LifecycleEvent
	for rows.Next() {
		var (
			ev          models.LifecycleEvent
			fromState   string
			toState     string
			triggeredBy string
			success     int
		)
		if err := rows.Scan(&ev.ID, &ev.InstanceID, &fromState, &toState, &triggeredBy, &success, &ev.Detail, &ev.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan lifecycle event: %w", err)
		}
		ev.FromState = models.LifecycleState(fromState)
		ev.ToState = models.LifecycleState(toState)
		ev.TriggeredBy = models.TriggeredBy(triggeredBy)
		ev.Success = success == 1
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// CountRecentErrors counts error entries inside the rolling window.
func (r *LifecycleRepository) CountRecentErrors(ctx context.Context, instanceID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lifecycle_events
		 WHERE instance_id = ? AND to_state = 'error' AND success = 1 AND occurred_at >= ?`,
		instanceID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count recent errors: %w", err)
	}
	return count, nil
}

// Ensure LifecycleRepository implements the interface.
var _ secondary.LifecycleRepository = (*LifecycleRepository)(nil)
