// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// ExecutionRepository implements secondary.ExecutionRepository with SQLite.
type ExecutionRepository struct {
	db *sql.DB
}

// NewExecutionRepository creates a new SQLite execution repository.
func NewExecutionRepository(db *sql.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// Create persists a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.Execution, mergeState []byte) error {
	workers, err := json.Marshal(exec.AssignedWorkers)
	if err != nil {
		return fmt.Errorf("failed to marshal assigned workers: %w", err)
	}
	if len(mergeState) == 0 {
		mergeState = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO executions
			(id, work_item_id, workflow_id, task_type, current_phase, sync_status,
			 status, assigned_workers, merge_state, error_details, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exec.ID, exec.WorkItemID, exec.WorkflowID, exec.TaskType, exec.CurrentPhase,
		string(exec.SyncStatus), string(exec.Status), string(workers), string(mergeState),
		exec.ErrorDetails, exec.CreatedAt, exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}
	return nil
}

const executionColumns = `id, work_item_id, workflow_id, task_type, current_phase,
	sync_status, status, assigned_workers, merge_state, error_details,
	created_at, updated_at, completed_at`

func scanExecution(row interface{ Scan(...any) error }) (*models.Execution, []byte, error) {
	var (
		exec        models.Execution
		syncStatus  string
		status      string
		workers     string
		mergeState  string
		completedAt sql.NullTime
	)
	err := row.Scan(&exec.ID, &exec.WorkItemID, &exec.WorkflowID, &exec.TaskType,
		&exec.CurrentPhase, &syncStatus, &status, &workers, &mergeState,
		&exec.ErrorDetails, &exec.CreatedAt, &exec.UpdatedAt, &completedAt)
	if err != nil {
		return nil, nil, err
	}
	exec.SyncStatus = models.SyncStatus(syncStatus)
	exec.Status = models.ExecutionStatus(status)
	if completedAt.Valid {
		exec.CompletedAt = &completedAt.Time
	}
	if err := json.Unmarshal([]byte(workers), &exec.AssignedWorkers); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal assigned workers: %w", err)
	}
	return &exec, []byte(mergeState), nil
}

// GetByID retrieves an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, []byte, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE id = ?", id)
	exec, state, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("execution %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return exec, state, nil
}

// GetActiveByWorkItem retrieves the single non-terminal execution for a work item.
func (r *ExecutionRepository) GetActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, []byte, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+executionColumns+" FROM executions WHERE work_item_id = ? AND status = 'running'",
		workItemID)
	exec, state, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("active execution for %s: %w", workItemID, models.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get active execution: %w", err)
	}
	return exec, state, nil
}

// Update updates an existing execution and its merge state.
func (r *ExecutionRepository) Update(ctx context.Context, exec *models.Execution, mergeState []byte) error {
	workers, err := json.Marshal(exec.AssignedWorkers)
	if err != nil {
		return fmt.Errorf("failed to marshal assigned workers: %w", err)
	}
	if len(mergeState) == 0 {
		mergeState = []byte("{}")
	}

	var completedAt sql.NullTime
	if exec.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *exec.CompletedAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE executions SET
			current_phase = ?, sync_status = ?, status = ?, assigned_workers = ?,
			merge_state = ?, error_details = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		exec.CurrentPhase, string(exec.SyncStatus), string(exec.Status), string(workers),
		string(mergeState), exec.ErrorDetails, exec.UpdatedAt, completedAt, exec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s: %w", exec.ID, models.ErrNotFound)
	}
	return nil
}

// List retrieves executions matching the filters.
func (r *ExecutionRepository) List(ctx context.Context, filters secondary.ExecutionFilters) ([]*models.Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE 1=1"
	args := []any{}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filters.Status))
	}
	if filters.SyncStatus != "" {
		query += " AND sync_status = ?"
		args = append(args, string(filters.SyncStatus))
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var execs []*models.Execution
	for rows.Next() {
		exec, _, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// Ensure ExecutionRepository implements the interface.
var _ secondary.ExecutionRepository = (*ExecutionRepository)(nil)
