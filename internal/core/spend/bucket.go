// Package spend contains the pure budget math for the spend governor:
// period boundaries, charge evaluation, and threshold detection.
package spend

import "time"

// Period identifies a budget window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// DefaultThresholdPct is the alert threshold as a percentage of either limit.
const DefaultThresholdPct = 80.0

// PeriodStart returns the UTC boundary that opens the period containing now.
// Counters reset at this boundary.
func PeriodStart(p Period, now time.Time) time.Time {
	now = now.UTC()
	switch p {
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// SamePeriod reports whether two instants fall in the same budget period.
func SamePeriod(p Period, a, b time.Time) bool {
	return PeriodStart(p, a).Equal(PeriodStart(p, b))
}

// Decision is the outcome of evaluating a charge against one period.
type Decision struct {
	Allowed          bool
	NewSpend         float64 // equals current spend when denied
	ThresholdCrossed bool    // first crossing of thresholdPct of the limit
}

// Evaluate applies token-bucket semantics for one period: a charge that would
// push the counter past the limit is denied and the counter is untouched. The
// threshold alert is independent of the hard deny at 100%.
func Evaluate(current, limit, amount, thresholdPct float64) Decision {
	if amount < 0 {
		return Decision{Allowed: false, NewSpend: current}
	}
	next := current + amount
	if limit > 0 && next > limit {
		return Decision{Allowed: false, NewSpend: current}
	}
	d := Decision{Allowed: true, NewSpend: next}
	if limit > 0 && thresholdPct > 0 {
		mark := limit * thresholdPct / 100
		d.ThresholdCrossed = current < mark && next >= mark
	}
	return d
}
