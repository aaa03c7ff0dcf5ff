package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// InstanceRepository implements secondary.InstanceRepository with SQLite.
// Spend and state writes are guarded by the version column.
type InstanceRepository struct {
	db *sql.DB
}

// NewInstanceRepository creates a new SQLite instance repository.
func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create persists a new instance.
func (r *InstanceRepository) Create(ctx context.Context, inst *models.PersonaInstance) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO persona_instances
			(id, name, role, state, max_concurrent_tasks, active_tasks, priority_level,
			 last_activity_at, spend_limit_daily, spend_limit_monthly,
			 current_spend_daily, current_spend_monthly,
			 daily_period_start, monthly_period_start, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.Name, inst.Role, string(inst.State), inst.MaxConcurrentTasks,
		inst.ActiveTasks, inst.PriorityLevel, inst.LastActivityAt,
		inst.SpendLimitDaily, inst.SpendLimitMonthly,
		inst.CurrentSpendDaily, inst.CurrentSpendMonthly,
		nullableTime(inst.DailyPeriodStart), nullableTime(inst.MonthlyPeriodStart),
		inst.Version, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

const instanceColumns = `id, name, role, state, max_concurrent_tasks, active_tasks,
	priority_level, last_activity_at, spend_limit_daily, spend_limit_monthly,
	current_spend_daily, current_spend_monthly,
	daily_period_start, monthly_period_start, version, created_at, updated_at`

func scanInstance(row interface{ Scan(...any) error }) (*models.PersonaInstance, error) {
	var (
		inst         models.PersonaInstance
		state        string
		dailyStart   sql.NullTime
		monthlyStart sql.NullTime
	)
	err := row.Scan(&inst.ID, &inst.Name, &inst.Role, &state, &inst.MaxConcurrentTasks,
		&inst.ActiveTasks, &inst.PriorityLevel, &inst.LastActivityAt,
		&inst.SpendLimitDaily, &inst.SpendLimitMonthly,
		&inst.CurrentSpendDaily, &inst.CurrentSpendMonthly,
		&dailyStart, &monthlyStart,
		&inst.Version, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inst.State = models.LifecycleState(state)
	if dailyStart.Valid {
		inst.DailyPeriodStart = &dailyStart.Time
	}
	if monthlyStart.Valid {
		inst.MonthlyPeriodStart = &monthlyStart.Time
	}
	return &inst, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// GetByID retrieves an instance by its ID.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.PersonaInstance, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM persona_instances WHERE id = ?", id)
	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	return inst, nil
}

// List retrieves instances matching the filters.
func (r *InstanceRepository) List(ctx context.Context, filters secondary.InstanceFilters) ([]*models.PersonaInstance, error) {
	query := "SELECT " + instanceColumns + " FROM persona_instances WHERE 1=1"
	args := []any{}
	if filters.Role != "" {
		query += " AND role = ?"
		args = append(args, filters.Role)
	}
	if len(filters.States) > 0 {
		placeholders := make([]string, len(filters.States))
		for i, s := range filters.States {
			placeholders[i] = "?"
			args = append(args, string(s))
		}
		query += " AND state IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	var instances []*models.PersonaInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// UpdateSpend writes the spend counters guarded by version.
func (r *InstanceRepository) UpdateSpend(ctx context.Context, id string, daily, monthly float64, dailyStart, monthlyStart time.Time, version int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE persona_instances SET
			current_spend_daily = ?, current_spend_monthly = ?,
			daily_period_start = ?, monthly_period_start = ?,
			version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		daily, monthly, dailyStart, monthlyStart, id, version,
	)
	if err != nil {
		return fmt.Errorf("failed to update spend: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %s spend update: %w", id, models.ErrVersionConflict)
	}
	return nil
}

// UpdateState writes the lifecycle state guarded by version.
func (r *InstanceRepository) UpdateState(ctx context.Context, id string, state models.LifecycleState, version int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE persona_instances SET
			state = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND version = ?`,
		string(state), id, version,
	)
	if err != nil {
		return fmt.Errorf("failed to update state: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %s state update: %w", id, models.ErrVersionConflict)
	}
	return nil
}

// AdjustActiveTasks changes the active task count by delta and touches
// last_activity. The count never drops below zero.
func (r *InstanceRepository) AdjustActiveTasks(ctx context.Context, id string, delta int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE persona_instances SET
			active_tasks = MAX(0, active_tasks + ?),
			last_activity_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust active tasks: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Decommission permanently removes an instance. Dependent rows cascade; this
// is the only physical delete in the system.
func (r *InstanceRepository) Decommission(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM persona_instances WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to decommission instance: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("instance %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Ensure InstanceRepository implements the interface.
var _ secondary.InstanceRepository = (*InstanceRepository)(nil)
