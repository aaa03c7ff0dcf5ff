package models

import "time"

// MetricSample is one write-once measurement for an instance.
type MetricSample struct {
	ID         string
	InstanceID string
	MetricType string
	Value      float64
	RecordedAt time.Time
}

// RollupWindow selects the aggregation granularity.
type RollupWindow string

const (
	RollupHourly RollupWindow = "hour"
	RollupDaily  RollupWindow = "day"
)

// MetricRollup is an aggregate over one window of samples.
type MetricRollup struct {
	ID          string
	InstanceID  string
	MetricType  string
	Window      RollupWindow
	WindowStart time.Time
	Min         float64
	Max         float64
	Avg         float64
	Sum         float64
	Count       int
	P50         float64
	P95         float64
	P99         float64
}

// HealthStatus summarizes an instance's operational health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
	HealthCritical HealthStatus = "critical"
	HealthUnknown  HealthStatus = "unknown"
)
