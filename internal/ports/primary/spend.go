package primary

import (
	"context"
	"time"
)

// Spend categories charged against instance budgets.
const (
	SpendCategoryLLM = "llm_usage"
	SpendCategoryAPI = "api_usage"
)

// SpendDecision is the governor's verdict on a charge.
type SpendDecision string

const (
	SpendAllow SpendDecision = "Allow"
	SpendDeny  SpendDecision = "Deny"
)

// SpendService enforces per-instance budget ceilings with token-bucket
// semantics per period.
type SpendService interface {
	// Charge applies an amount against the instance's daily and monthly
	// buckets. A charge that would exceed either limit is denied and no
	// counter moves. Denials also return models.ErrBudgetExceeded so
	// callers can reassign.
	Charge(ctx context.Context, instanceID string, amount float64, category string) (SpendDecision, error)

	// Status reports current counters, limits, and percentages.
	Status(ctx context.Context, instanceID string) (*SpendStatus, error)

	// History lists charge entries, newest first.
	History(ctx context.Context, instanceID, category string, since time.Time) ([]SpendHistoryEntry, error)
}

// SpendStatus summarizes an instance's budget position.
type SpendStatus struct {
	InstanceID        string
	DailySpend        float64
	DailyLimit        float64
	DailyPercentage   float64
	MonthlySpend      float64
	MonthlyLimit      float64
	MonthlyPercentage float64
}

// SpendHistoryEntry is one audited charge.
type SpendHistoryEntry struct {
	Amount    float64
	Category  string
	Allowed   bool
	ChargedAt time.Time
}
