package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// ApprovalRepository implements secondary.ApprovalRepository with SQLite.
type ApprovalRepository struct {
	db *sql.DB
}

// NewApprovalRepository creates a new SQLite approval repository.
func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreateGate opens a gate at assignment time.
func (r *ApprovalRepository) CreateGate(ctx context.Context, gate *secondary.ApprovalGate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO approval_gates
			(execution_id, phase, workflow_id, task_type, min_approvals,
			 escalation_timeout_ms, assigned_at, escalated, vetoed, vetoed_by, closed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, '', 0)`,
		gate.ExecutionID, gate.Phase, gate.WorkflowID, gate.TaskType,
		gate.MinApprovals, gate.EscalationTimeout.Milliseconds(), gate.AssignedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval gate: %w", err)
	}
	return nil
}

const gateColumns = `execution_id, phase, workflow_id, task_type, min_approvals,
	escalation_timeout_ms, assigned_at, escalated, vetoed, vetoed_by, closed`

func scanGate(row interface{ Scan(...any) error }) (*secondary.ApprovalGate, error) {
	var (
		gate      secondary.ApprovalGate
		timeoutMs int64
		escalated int
		vetoed    int
		closed    int
	)
	err := row.Scan(&gate.ExecutionID, &gate.Phase, &gate.WorkflowID, &gate.TaskType,
		&gate.MinApprovals, &timeoutMs, &gate.AssignedAt, &escalated, &vetoed,
		&gate.VetoedBy, &closed)
	if err != nil {
		return nil, err
	}
	gate.EscalationTimeout = time.Duration(timeoutMs) * time.Millisecond
	gate.Escalated = escalated == 1
	gate.Vetoed = vetoed == 1
	gate.Closed = closed == 1
	return &gate, nil
}

// GetGate retrieves the gate for an execution phase.
func (r *ApprovalRepository) GetGate(ctx context.Context, executionID, phase string) (*secondary.ApprovalGate, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+gateColumns+" FROM approval_gates WHERE execution_id = ? AND phase = ?",
		executionID, phase)
	gate, err := scanGate(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("approval gate %s/%s: %w", executionID, phase, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval gate: %w", err)
	}
	return gate, nil
}

// RecordApproval adds an approval; repeat approvals are idempotent.
func (r *ApprovalRepository) RecordApproval(ctx context.Context, executionID, phase, instanceID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO approvals (execution_id, phase, instance_id) VALUES (?, ?, ?)`,
		executionID, phase, instanceID,
	)
	if err != nil {
		return fmt.Errorf("failed to record approval: %w", err)
	}
	return nil
}

// RecordVeto marks the gate vetoed.
func (r *ApprovalRepository) RecordVeto(ctx context.Context, executionID, phase, instanceID string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE approval_gates SET vetoed = 1, vetoed_by = ? WHERE execution_id = ? AND phase = ?",
		instanceID, executionID, phase,
	)
	if err != nil {
		return fmt.Errorf("failed to record veto: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("approval gate %s/%s: %w", executionID, phase, models.ErrNotFound)
	}
	return nil
}

// Approvals lists the distinct approvers for a gate.
func (r *ApprovalRepository) Approvals(ctx context.Context, executionID, phase string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT instance_id FROM approvals WHERE execution_id = ? AND phase = ? ORDER BY approved_at ASC",
		executionID, phase,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	var approvers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvers = append(approvers, id)
	}
	return approvers, rows.Err()
}

// MarkEscalated stamps the gate escalated so the timer fires once.
func (r *ApprovalRepository) MarkEscalated(ctx context.Context, executionID, phase string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE approval_gates SET escalated = 1 WHERE execution_id = ? AND phase = ?",
		executionID, phase,
	)
	if err != nil {
		return fmt.Errorf("failed to mark gate escalated: %w", err)
	}
	return nil
}

// CloseGate marks the gate closed once quorum is reached.
func (r *ApprovalRepository) CloseGate(ctx context.Context, executionID, phase string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE approval_gates SET closed = 1 WHERE execution_id = ? AND phase = ?",
		executionID, phase,
	)
	if err != nil {
		return fmt.Errorf("failed to close approval gate: %w", err)
	}
	return nil
}

// ListDue returns open, unescalated gates whose escalation timeout has expired.
func (r *ApprovalRepository) ListDue(ctx context.Context, now time.Time) ([]*secondary.ApprovalGate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+gateColumns+` FROM approval_gates
		 WHERE closed = 0 AND escalated = 0 AND escalation_timeout_ms > 0
		 ORDER BY assigned_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due gates: %w", err)
	}
	defer rows.Close()

	var due []*secondary.ApprovalGate
	for rows.Next() {
		gate, err := scanGate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval gate: %w", err)
		}
		if now.Sub(gate.AssignedAt) >= gate.EscalationTimeout {
			due = append(due, gate)
		}
	}
	return due, rows.Err()
}

// Ensure ApprovalRepository implements the interface.
var _ secondary.ApprovalRepository = (*ApprovalRepository)(nil)
