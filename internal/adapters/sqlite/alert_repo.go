package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// AlertRepository implements secondary.AlertRepository with SQLite. Alerts
// are never deleted; acknowledgment and resolution only add timestamps.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository creates a new SQLite alert repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create persists a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts
			(id, instance_id, execution_id, type, severity, detail, acknowledged, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		alert.ID, alert.InstanceID, alert.ExecutionID, string(alert.Type),
		string(alert.Severity), alert.Detail, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

const alertColumns = `id, instance_id, execution_id, type, severity, detail,
	acknowledged, resolved, created_at, acknowledged_at, resolved_at`

func scanAlert(row interface{ Scan(...any) error }) (*models.Alert, error) {
	var (
		alert          models.Alert
		alertType      string
		severity       string
		acknowledged   int
		resolved       int
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
	)
	err := row.Scan(&alert.ID, &alert.InstanceID, &alert.ExecutionID, &alertType,
		&severity, &alert.Detail, &acknowledged, &resolved,
		&alert.CreatedAt, &acknowledgedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	alert.Type = models.AlertType(alertType)
	alert.Severity = models.AlertSeverity(severity)
	alert.Acknowledged = acknowledged == 1
	alert.Resolved = resolved == 1
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	return &alert, nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// GetUnresolved returns the open alert for (instance, type).
func (r *AlertRepository) GetUnresolved(ctx context.Context, instanceID string, alertType models.AlertType) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE instance_id = ? AND type = ? AND resolved = 0 LIMIT 1",
		instanceID, string(alertType))
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("unresolved %s alert for %s: %w", alertType, instanceID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unresolved alert: %w", err)
	}
	return alert, nil
}

// List retrieves alerts matching the filters.
func (r *AlertRepository) List(ctx context.Context, filters secondary.AlertFilters) ([]*models.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE 1=1"
	args := []any{}
	if filters.InstanceID != "" {
		query += " AND instance_id = ?"
		args = append(args, filters.InstanceID)
	}
	if filters.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filters.Type))
	}
	if filters.Resolved != nil {
		query += " AND resolved = ?"
		args = append(args, boolToInt(*filters.Resolved))
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// Acknowledge stamps the acknowledgment time.
func (r *AlertRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET acknowledged = 1, acknowledged_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// Resolve stamps the resolution time.
func (r *AlertRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET resolved = 1, resolved_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// WorstUnresolvedSeverity returns the highest open severity for an instance.
func (r *AlertRepository) WorstUnresolvedSeverity(ctx context.Context, instanceID string) (models.AlertSeverity, error) {
	var severity sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT severity FROM alerts WHERE instance_id = ? AND resolved = 0
		 ORDER BY CASE severity WHEN 'critical' THEN 3 WHEN 'warning' THEN 2 ELSE 1 END DESC
		 LIMIT 1`,
		instanceID,
	).Scan(&severity)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get worst severity: %w", err)
	}
	return models.AlertSeverity(severity.String), nil
}

// Ensure AlertRepository implements the interface.
var _ secondary.AlertRepository = (*AlertRepository)(nil)
