package models

import "time"

// AlertType classifies coordination alerts.
type AlertType string

const (
	AlertStateConflict     AlertType = "state_conflict"
	AlertSpendThreshold    AlertType = "spend_threshold"
	AlertInstanceUnhealthy AlertType = "instance_unhealthy"
	AlertEscalation        AlertType = "escalation"
	AlertTaskTimeout       AlertType = "task_timeout"
	AlertHighErrorRate     AlertType = "high_error_rate"
	AlertDeadLetter        AlertType = "dead_letter"
)

// AlertSeverity orders alerts for health derivation.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is raised by the monitoring evaluator when a rule breaches. Alerts are
// never deleted; acknowledgment and resolution only add timestamps.
type Alert struct {
	ID             string
	InstanceID     string
	ExecutionID    string
	Type           AlertType
	Severity       AlertSeverity
	Detail         string
	Acknowledged   bool
	Resolved       bool
	CreatedAt      time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
}
