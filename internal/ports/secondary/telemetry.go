package secondary

import (
	"context"
	"time"

	"github.com/example/coord/internal/models"
)

// MetricRepository persists write-once samples and their rollups.
type MetricRepository interface {
	// Append persists a new sample.
	Append(ctx context.Context, sample *models.MetricSample) error

	// Values retrieves sample values for one series inside [from, to).
	Values(ctx context.Context, instanceID, metricType string, from, to time.Time) ([]float64, error)

	// Series lists the distinct (instance, metricType) pairs with samples
	// inside [from, to).
	Series(ctx context.Context, from, to time.Time) ([]SeriesKey, error)

	// SaveRollup upserts a rollup for one window.
	SaveRollup(ctx context.Context, rollup *models.MetricRollup) error

	// ListRollups retrieves rollups for an instance and window.
	ListRollups(ctx context.Context, instanceID string, window models.RollupWindow, limit int) ([]*models.MetricRollup, error)
}

// SeriesKey identifies one metric series.
type SeriesKey struct {
	InstanceID string
	MetricType string
}

// AlertRepository persists alerts. Alerts are never deleted; acknowledgment
// and resolution only add timestamps.
type AlertRepository interface {
	// Create persists a new alert.
	Create(ctx context.Context, alert *models.Alert) error

	// GetByID retrieves an alert by its ID.
	GetByID(ctx context.Context, id string) (*models.Alert, error)

	// GetUnresolved returns the open alert for (instance, type), or
	// models.ErrNotFound.
	GetUnresolved(ctx context.Context, instanceID string, alertType models.AlertType) (*models.Alert, error)

	// List retrieves alerts matching the filters.
	List(ctx context.Context, filters AlertFilters) ([]*models.Alert, error)

	// Acknowledge stamps the acknowledgment time.
	Acknowledge(ctx context.Context, id string, at time.Time) error

	// Resolve stamps the resolution time.
	Resolve(ctx context.Context, id string, at time.Time) error

	// WorstUnresolvedSeverity returns the highest severity currently open for
	// an instance, or empty when none.
	WorstUnresolvedSeverity(ctx context.Context, instanceID string) (models.AlertSeverity, error)
}

// AlertFilters contains filter options for querying alerts.
type AlertFilters struct {
	InstanceID string
	Type       models.AlertType
	Resolved   *bool
	Limit      int
}

// HealthCheckRepository records health-check outcomes consumed by the
// lifecycle manager and health derivation.
type HealthCheckRepository interface {
	// Append records one check result.
	Append(ctx context.Context, check *HealthCheck) error

	// Latest returns the most recent check for an instance, or
	// models.ErrNotFound.
	Latest(ctx context.Context, instanceID string) (*HealthCheck, error)
}

// HealthCheck is one health probe outcome.
type HealthCheck struct {
	ID         string
	InstanceID string
	Healthy    bool
	Detail     string
	CheckedAt  time.Time
}
