// Package metrics contains the pure aggregation math for the monitoring
// evaluator: rollup summaries, percentiles, and health derivation.
package metrics

import (
	"sort"
	"time"

	"github.com/example/coord/internal/models"
)

// Summary aggregates one window of samples.
type Summary struct {
	Min   float64
	Max   float64
	Avg   float64
	Sum   float64
	Count int
	P50   float64
	P95   float64
	P99   float64
}

// Aggregate computes the rollup summary for a set of sample values.
func Aggregate(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Min: values[0], Max: values[0], Count: len(values)}
	for _, v := range values {
		s.Sum += v
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	s.Avg = s.Sum / float64(len(values))

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	s.P50 = percentile(sorted, 0.50)
	s.P95 = percentile(sorted, 0.95)
	s.P99 = percentile(sorted, 0.99)
	return s
}

// percentile uses nearest-rank on a pre-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// WindowStart truncates an instant to its rollup window boundary (UTC).
func WindowStart(w models.RollupWindow, at time.Time) time.Time {
	at = at.UTC()
	if w == models.RollupDaily {
		return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	}
	return at.Truncate(time.Hour)
}

// severityRank orders alert severities for worst-of comparison.
func severityRank(s models.AlertSeverity) int {
	switch s {
	case models.SeverityCritical:
		return 3
	case models.SeverityWarning:
		return 2
	case models.SeverityInfo:
		return 1
	default:
		return 0
	}
}

// HealthInput is the evidence health derivation considers.
type HealthInput struct {
	ErrorCount        int  // errors in the rolling window
	RecentCheckFailed bool // latest health check result
	HasRecentCheck    bool
	WorstUnresolved   models.AlertSeverity // zero value when none unresolved
}

// DeriveHealth returns the worst of error-count trend, recent health-check
// results, and unresolved-alert severity.
func DeriveHealth(in HealthInput) models.HealthStatus {
	if !in.HasRecentCheck && in.ErrorCount == 0 && in.WorstUnresolved == "" {
		return models.HealthUnknown
	}
	worst := models.HealthHealthy
	bump := func(h models.HealthStatus) {
		if healthRank(h) > healthRank(worst) {
			worst = h
		}
	}
	if in.RecentCheckFailed {
		bump(models.HealthCritical)
	}
	switch {
	case in.ErrorCount >= 3:
		bump(models.HealthCritical)
	case in.ErrorCount > 0:
		bump(models.HealthWarning)
	}
	switch severityRank(in.WorstUnresolved) {
	case 3:
		bump(models.HealthCritical)
	case 2:
		bump(models.HealthWarning)
	}
	return worst
}

func healthRank(h models.HealthStatus) int {
	switch h {
	case models.HealthCritical:
		return 3
	case models.HealthWarning:
		return 2
	case models.HealthHealthy:
		return 1
	default:
		return 0
	}
}
