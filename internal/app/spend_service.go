package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/coord/internal/core/spend"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/ports/secondary"
)

// chargeRetries bounds the optimistic-concurrency retry loop. Contention on
// one instance's counters is short-lived; past this the caller re-Charges.
const chargeRetries = 3

// SpendServiceImpl implements the SpendService interface.
type SpendServiceImpl struct {
	instanceRepo secondary.InstanceRepository
	ledger       secondary.SpendLedger
	monitor      primary.MonitorService
	thresholdPct float64
	logger       *slog.Logger

	now func() time.Time
}

// NewSpendService creates a new SpendService with injected dependencies.
func NewSpendService(
	instanceRepo secondary.InstanceRepository,
	ledger secondary.SpendLedger,
	monitor primary.MonitorService,
	thresholdPct float64,
	logger *slog.Logger,
) *SpendServiceImpl {
	if thresholdPct <= 0 {
		thresholdPct = spend.DefaultThresholdPct
	}
	return &SpendServiceImpl{
		instanceRepo: instanceRepo,
		ledger:       ledger,
		monitor:      monitor,
		thresholdPct: thresholdPct,
		logger:       logger,
		now:          time.Now,
	}
}

// Charge applies an amount against the instance's daily and monthly buckets.
// Both buckets must admit the charge or neither counter moves.
func (s *SpendServiceImpl) Charge(ctx context.Context, instanceID string, amount float64, category string) (primary.SpendDecision, error) {
	var lastErr error
	for attempt := 0; attempt < chargeRetries; attempt++ {
		decision, err := s.chargeOnce(ctx, instanceID, amount, category)
		if errors.Is(err, models.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return decision, err
	}
	return primary.SpendDeny, fmt.Errorf("failed to charge %s after %d attempts: %w", instanceID, chargeRetries, lastErr)
}

func (s *SpendServiceImpl) chargeOnce(ctx context.Context, instanceID string, amount float64, category string) (primary.SpendDecision, error) {
	inst, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return primary.SpendDeny, err
	}

	now := s.now()
	daily, dailyStart := rolledOver(spend.PeriodDaily, inst.CurrentSpendDaily, inst.DailyPeriodStart, now)
	monthly, monthlyStart := rolledOver(spend.PeriodMonthly, inst.CurrentSpendMonthly, inst.MonthlyPeriodStart, now)

	dayDecision := spend.Evaluate(daily, inst.SpendLimitDaily, amount, s.thresholdPct)
	monthDecision := spend.Evaluate(monthly, inst.SpendLimitMonthly, amount, s.thresholdPct)

	allowed := dayDecision.Allowed && monthDecision.Allowed
	if allowed {
		daily = dayDecision.NewSpend
		monthly = monthDecision.NewSpend
	}

	// Counters are written even on deny when a period rolled over, so stale
	// counters never survive a boundary.
	err = s.instanceRepo.UpdateSpend(ctx, instanceID, daily, monthly, dailyStart, monthlyStart, inst.Version)
	if err != nil {
		return primary.SpendDeny, err
	}

	entry := &secondary.SpendEntry{
		ID:         newID("SPND"),
		InstanceID: instanceID,
		Amount:     amount,
		Category:   category,
		Allowed:    allowed,
		ChargedAt:  now,
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		return primary.SpendDeny, fmt.Errorf("failed to append spend entry: %w", err)
	}

	if !allowed {
		s.logger.Warn("charge denied",
			"instance_id", instanceID,
			"amount", amount,
			"category", category,
			"daily_spend", daily,
			"monthly_spend", monthly)
		return primary.SpendDeny, fmt.Errorf("charge of %.2f on %s: %w", amount, instanceID, models.ErrBudgetExceeded)
	}

	if dayDecision.ThresholdCrossed {
		s.raiseThresholdAlert(ctx, instanceID, "daily", daily, inst.SpendLimitDaily)
	}
	if monthDecision.ThresholdCrossed {
		s.raiseThresholdAlert(ctx, instanceID, "monthly", monthly, inst.SpendLimitMonthly)
	}
	return primary.SpendAllow, nil
}

// rolledOver resets a counter when now has crossed into a new period.
func rolledOver(p spend.Period, current float64, start *time.Time, now time.Time) (float64, time.Time) {
	if start == nil || !spend.SamePeriod(p, *start, now) {
		return 0, spend.PeriodStart(p, now)
	}
	return current, *start
}

func (s *SpendServiceImpl) raiseThresholdAlert(ctx context.Context, instanceID, period string, current, limit float64) {
	detail := fmt.Sprintf("%s spend %.2f crossed %.0f%% of limit %.2f",
		period, current, s.thresholdPct, limit)
	if err := s.monitor.RaiseAlert(ctx, instanceID, "", models.AlertSpendThreshold, models.SeverityWarning, detail); err != nil {
		s.logger.Error("failed to raise spend threshold alert", "instance_id", instanceID, "error", err)
	}
}

// Status reports current counters, limits, and percentages. Counters are
// presented post-rollover without persisting the reset.
func (s *SpendServiceImpl) Status(ctx context.Context, instanceID string) (*primary.SpendStatus, error) {
	inst, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	daily, _ := rolledOver(spend.PeriodDaily, inst.CurrentSpendDaily, inst.DailyPeriodStart, now)
	monthly, _ := rolledOver(spend.PeriodMonthly, inst.CurrentSpendMonthly, inst.MonthlyPeriodStart, now)

	return &primary.SpendStatus{
		InstanceID:        instanceID,
		DailySpend:        daily,
		DailyLimit:        inst.SpendLimitDaily,
		DailyPercentage:   percentageOf(daily, inst.SpendLimitDaily),
		MonthlySpend:      monthly,
		MonthlyLimit:      inst.SpendLimitMonthly,
		MonthlyPercentage: percentageOf(monthly, inst.SpendLimitMonthly),
	}, nil
}

func percentageOf(current, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return current / limit * 100
}

// History lists charge entries, newest first.
func (s *SpendServiceImpl) History(ctx context.Context, instanceID, category string, since time.Time) ([]primary.SpendHistoryEntry, error) {
	entries, err := s.ledger.List(ctx, instanceID, category, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list spend history: %w", err)
	}

	out := make([]primary.SpendHistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = primary.SpendHistoryEntry{
			Amount:    e.Amount,
			Category:  e.Category,
			Allowed:   e.Allowed,
			ChargedAt: e.ChargedAt,
		}
	}
	return out, nil
}

// Ensure SpendServiceImpl implements the interface.
var _ primary.SpendService = (*SpendServiceImpl)(nil)
