package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// HealthCheckRepository implements secondary.HealthCheckRepository with SQLite.
type HealthCheckRepository struct {
	db *sql.DB
}

// NewHealthCheckRepository creates a new SQLite health check repository.
func NewHealthCheckRepository(db *sql.DB) *HealthCheckRepository {
	return &HealthCheckRepository{db: db}
}

// Append records one check result.
func (r *HealthCheckRepository) Append(ctx context.Context, check *secondary.HealthCheck) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO health_checks (id, instance_id, healthy, detail, checked_at) VALUES (?, ?, ?, ?, ?)",
		check.ID, check.InstanceID, boolToInt(check.Healthy), check.Detail, check.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append health check: %w", err)
	}
	return nil
}

// Latest returns the most recent check for an instance.
func (r *HealthCheckRepository) Latest(ctx context.Context, instanceID string) (*secondary.HealthCheck, error) {
	var (
		check   secondary.HealthCheck
		healthy int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, instance_id, healthy, detail, checked_at FROM health_checks
		 WHERE instance_id = ? ORDER BY checked_at DESC LIMIT 1`,
		instanceID,
	).Scan(&check.ID, &check.InstanceID, &healthy, &check.Detail, &check.CheckedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("health check for %s: %w", instanceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest health check: %w", err)
	}
	check.Healthy = healthy == 1
	return &check, nil
}

// Ensure HealthCheckRepository implements the interface.
var _ secondary.HealthCheckRepository = (*HealthCheckRepository)(nil)
