package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/coord/internal/core/metrics"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/ports/secondary"
)

// MonitorServiceImpl implements the MonitorService interface.
type MonitorServiceImpl struct {
	metricRepo    secondary.MetricRepository
	alertRepo     secondary.AlertRepository
	healthRepo    secondary.HealthCheckRepository
	lifecycleRepo secondary.LifecycleRepository
	rules         []primary.AlertRule
	errorWindow   time.Duration
	logger        *slog.Logger

	now func() time.Time
}

// NewMonitorService creates a new MonitorService with injected dependencies.
func NewMonitorService(
	metricRepo secondary.MetricRepository,
	alertRepo secondary.AlertRepository,
	healthRepo secondary.HealthCheckRepository,
	lifecycleRepo secondary.LifecycleRepository,
	rules []primary.AlertRule,
	errorWindow time.Duration,
	logger *slog.Logger,
) *MonitorServiceImpl {
	return &MonitorServiceImpl{
		metricRepo:    metricRepo,
		alertRepo:     alertRepo,
		healthRepo:    healthRepo,
		lifecycleRepo: lifecycleRepo,
		rules:         rules,
		errorWindow:   errorWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// DefaultAlertRules returns the built-in rule set.
func DefaultAlertRules() []primary.AlertRule {
	return []primary.AlertRule{
		{
			MetricType: "error_rate",
			Type:       models.AlertHighErrorRate,
			Severity:   models.SeverityCritical,
			Threshold:  0.10,
			Above:      true,
			Window:     5 * time.Minute,
		},
		{
			MetricType: "task_duration_ms",
			Type:       models.AlertInstanceUnhealthy,
			Severity:   models.SeverityWarning,
			Threshold:  300000,
			Above:      true,
			Window:     15 * time.Minute,
		},
	}
}

// Record persists one sample and evaluates alert rules for its series.
func (s *MonitorServiceImpl) Record(ctx context.Context, instanceID, metricType string, value float64) error {
	sample := &models.MetricSample{
		ID:         newID("MET"),
		InstanceID: instanceID,
		MetricType: metricType,
		Value:      value,
		RecordedAt: s.now(),
	}
	if err := s.metricRepo.Append(ctx, sample); err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}

	for _, rule := range s.rules {
		if rule.MetricType != metricType {
			continue
		}
		if err := s.evaluateRule(ctx, rule, instanceID, sample.RecordedAt); err != nil {
			return err
		}
	}
	return nil
}

// Rollup aggregates samples into rollups for all series inside [from, to).
func (s *MonitorServiceImpl) Rollup(ctx context.Context, window models.RollupWindow, from, to time.Time) (int, error) {
	series, err := s.metricRepo.Series(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to list series: %w", err)
	}

	step := time.Hour
	if window == models.RollupDaily {
		step = 24 * time.Hour
	}

	written := 0
	for _, key := range series {
		for start := metrics.WindowStart(window, from); start.Before(to); start = start.Add(step) {
			end := start.Add(step)
			values, err := s.metricRepo.Values(ctx, key.InstanceID, key.MetricType, start, end)
			if err != nil {
				return written, fmt.Errorf("failed to read samples: %w", err)
			}
			if len(values) == 0 {
				continue
			}
			sum := metrics.Aggregate(values)
			rollup := &models.MetricRollup{
				ID:          newID("ROLL"),
				InstanceID:  key.InstanceID,
				MetricType:  key.MetricType,
				Window:      window,
				WindowStart: start,
				Min:         sum.Min,
				Max:         sum.Max,
				Avg:         sum.Avg,
				Sum:         sum.Sum,
				Count:       sum.Count,
				P50:         sum.P50,
				P95:         sum.P95,
				P99:         sum.P99,
			}
			if err := s.metricRepo.SaveRollup(ctx, rollup); err != nil {
				return written, fmt.Errorf("failed to save rollup: %w", err)
			}
			written++
		}
	}
	return written, nil
}

// Health derives the instance's health status from recent evidence.
func (s *MonitorServiceImpl) Health(ctx context.Context, instanceID string) (models.HealthStatus, error) {
	in := metrics.HealthInput{}

	errorCount, err := s.lifecycleRepo.CountRecentErrors(ctx, instanceID, s.now().Add(-s.errorWindow))
	if err != nil {
		return models.HealthUnknown, fmt.Errorf("failed to count errors: %w", err)
	}
	in.ErrorCount = errorCount

	check, err := s.healthRepo.Latest(ctx, instanceID)
	switch {
	case err == nil:
		in.HasRecentCheck = true
		in.RecentCheckFailed = !check.Healthy
	case errors.Is(err, models.ErrNotFound):
		// No probe yet; other evidence may still apply.
	default:
		return models.HealthUnknown, fmt.Errorf("failed to read health check: %w", err)
	}

	worst, err := s.alertRepo.WorstUnresolvedSeverity(ctx, instanceID)
	if err != nil {
		return models.HealthUnknown, fmt.Errorf("failed to read alerts: %w", err)
	}
	in.WorstUnresolved = worst

	return metrics.DeriveHealth(in), nil
}

// ListAlerts lists alerts with optional filters.
func (s *MonitorServiceImpl) ListAlerts(ctx context.Context, filters primary.AlertFilters) ([]*models.Alert, error) {
	alerts, err := s.alertRepo.List(ctx, secondary.AlertFilters{
		InstanceID: filters.InstanceID,
		Type:       filters.Type,
		Resolved:   filters.Resolved,
		Limit:      filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert stamps acknowledgment on an alert.
func (s *MonitorServiceImpl) AcknowledgeAlert(ctx context.Context, alertID string) error {
	if _, err := s.alertRepo.GetByID(ctx, alertID); err != nil {
		return err
	}
	return s.alertRepo.Acknowledge(ctx, alertID, s.now())
}

// RaiseAlert opens an alert unless one is already unresolved for the
// (instance, type) pair. Duplicate raises are a no-op, so a flapping
// condition yields one open alert, not a flood.
func (s *MonitorServiceImpl) RaiseAlert(ctx context.Context, instanceID, executionID string, alertType models.AlertType, severity models.AlertSeverity, detail string) error {
	_, err := s.alertRepo.GetUnresolved(ctx, instanceID, alertType)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check open alerts: %w", err)
	}

	alert := &models.Alert{
		ID:          newID("ALERT"),
		InstanceID:  instanceID,
		ExecutionID: executionID,
		Type:        alertType,
		Severity:    severity,
		Detail:      detail,
		CreatedAt:   s.now(),
	}
	if err := s.alertRepo.Create(ctx, alert); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	s.logger.Warn("alert raised",
		"alert_id", alert.ID,
		"instance_id", instanceID,
		"type", string(alertType),
		"severity", string(severity))
	return nil
}

// Evaluate runs the configured alert rules against recent samples for every
// series, raising breaches and auto-resolving recovered alerts.
func (s *MonitorServiceImpl) Evaluate(ctx context.Context, now time.Time) error {
	for _, rule := range s.rules {
		series, err := s.metricRepo.Series(ctx, now.Add(-rule.Window), now)
		if err != nil {
			return fmt.Errorf("failed to list series: %w", err)
		}
		for _, key := range series {
			if key.MetricType != rule.MetricType {
				continue
			}
			if err := s.evaluateRule(ctx, rule, key.InstanceID, now); err != nil {
				return err
			}
		}
	}
	return nil
}

// evaluateRule checks one rule for one instance: the average over the rule
// window decides breach or recovery.
func (s *MonitorServiceImpl) evaluateRule(ctx context.Context, rule primary.AlertRule, instanceID string, now time.Time) error {
	values, err := s.metricRepo.Values(ctx, instanceID, rule.MetricType, now.Add(-rule.Window), now.Add(time.Nanosecond))
	if err != nil {
		return fmt.Errorf("failed to read samples: %w", err)
	}
	if len(values) == 0 {
		return nil
	}

	avg := metrics.Aggregate(values).Avg
	breached := avg > rule.Threshold
	if !rule.Above {
		breached = avg < rule.Threshold
	}

	if breached {
		detail := fmt.Sprintf("%s avg %.4f breached threshold %.4f over %s",
			rule.MetricType, avg, rule.Threshold, rule.Window)
		return s.RaiseAlert(ctx, instanceID, "", rule.Type, rule.Severity, detail)
	}

	// Recovered: auto-resolve the open alert for this rule, if any.
	open, err := s.alertRepo.GetUnresolved(ctx, instanceID, rule.Type)
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check open alerts: %w", err)
	}
	if err := s.alertRepo.Resolve(ctx, open.ID, now); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	s.logger.Info("alert auto-resolved", "alert_id", open.ID, "instance_id", instanceID, "type", string(rule.Type))
	return nil
}

// Ensure MonitorServiceImpl implements the interface.
var _ primary.MonitorService = (*MonitorServiceImpl)(nil)
