package primary

import (
	"context"
	"time"

	"github.com/example/coord/internal/models"
)

// MonitorService aggregates metric samples, evaluates alert rules, and
// derives instance health.
type MonitorService interface {
	// Record persists one sample and evaluates alert rules for its series.
	Record(ctx context.Context, instanceID, metricType string, value float64) error

	// Rollup aggregates samples into hourly or daily rollups for all series
	// inside [from, to).
	Rollup(ctx context.Context, window models.RollupWindow, from, to time.Time) (int, error)

	// Health derives the instance's health status: the worst of error-count
	// trend, recent health-check results, and unresolved-alert severity.
	Health(ctx context.Context, instanceID string) (models.HealthStatus, error)

	// ListAlerts lists alerts with optional filters.
	ListAlerts(ctx context.Context, filters AlertFilters) ([]*models.Alert, error)

	// AcknowledgeAlert stamps acknowledgment on an alert.
	AcknowledgeAlert(ctx context.Context, alertID string) error

	// RaiseAlert opens an alert unless one is already unresolved for the
	// (instance, type) pair.
	RaiseAlert(ctx context.Context, instanceID, executionID string, alertType models.AlertType, severity models.AlertSeverity, detail string) error

	// Evaluate runs the configured alert rules against recent samples,
	// raising breaches and auto-resolving recovered alerts.
	Evaluate(ctx context.Context, now time.Time) error
}

// AlertFilters contains filter options for listing alerts.
type AlertFilters struct {
	InstanceID string
	Type       models.AlertType
	Resolved   *bool
	Limit      int
}

// AlertRule compares a metric against a threshold over a duration window.
type AlertRule struct {
	MetricType string
	Type       models.AlertType
	Severity   models.AlertSeverity
	Threshold  float64
	Above      bool // breach when aggregate is above (vs below) threshold
	Window     time.Duration
}
