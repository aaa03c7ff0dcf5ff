package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// StateEventRepository implements secondary.StateEventRepository with SQLite.
// The table is append-only; nothing here mutates or deletes rows.
type StateEventRepository struct {
	db *sql.DB
}

// NewStateEventRepository creates a new SQLite state event repository.
func NewStateEventRepository(db *sql.DB) *StateEventRepository {
	return &StateEventRepository{db: db}
}

// Append persists a new state event.
func (r *StateEventRepository) Append(ctx context.Context, event *models.StateEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO state_events (id, execution_id, source, type, payload, sequence, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.ExecutionID, string(event.Source), event.Type,
		string(payload), event.Sequence, event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append state event: %w", err)
	}
	return nil
}

// LastSequence returns the highest applied sequence for an execution and source.
func (r *StateEventRepository) LastSequence(ctx context.Context, executionID string, source models.EventSource) (int64, error) {
	var last int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(sequence), 0) FROM state_events WHERE execution_id = ? AND source = ?",
		executionID, string(source),
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("failed to get last sequence: %w", err)
	}
	return last, nil
}

// ListByExecution retrieves events in arrival order.
func (r *StateEventRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.StateEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, execution_id, source, type, payload, sequence, received_at
		 FROM state_events WHERE execution_id = ? ORDER BY received_at ASC, sequence ASC`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list state events: %w", err)
	}
	defer rows.Close()

	var events []*models.StateEvent
	for rows.Next() {
		var (
			ev      models.StateEvent
			source  string
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.ExecutionID, &source, &ev.Type, &payload, &ev.Sequence, &ev.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan state event: %w", err)
		}
		ev.Source = models.EventSource(source)
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// Ensure StateEventRepository implements the interface.
var _ secondary.StateEventRepository = (*StateEventRepository)(nil)
