package models

import "time"

// LifecycleState is the operational status of a persona instance.
type LifecycleState string

const (
	StateProvisioning LifecycleState = "provisioning"
	StateInitializing LifecycleState = "initializing"
	StateActive       LifecycleState = "active"
	StateBusy         LifecycleState = "busy"
	StatePaused       LifecycleState = "paused"
	StateError        LifecycleState = "error"
	StateMaintenance  LifecycleState = "maintenance"
	StateTerminating  LifecycleState = "terminating"
	StateTerminated   LifecycleState = "terminated"
)

// Terminal reports whether the state admits no further transitions.
func (s LifecycleState) Terminal() bool {
	return s == StateTerminated
}

// PersonaInstance is one autonomous worker. Lifecycle fields are owned by the
// Lifecycle Manager; spend fields by the Spend Governor. Both guard their
// updates with the Version column (optimistic concurrency).
type PersonaInstance struct {
	ID                  string
	Name                string
	Role                string
	State               LifecycleState
	MaxConcurrentTasks  int
	ActiveTasks         int
	PriorityLevel       int
	LastActivityAt      time.Time
	SpendLimitDaily     float64
	SpendLimitMonthly   float64
	CurrentSpendDaily   float64
	CurrentSpendMonthly float64
	DailyPeriodStart    *time.Time
	MonthlyPeriodStart  *time.Time
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TriggeredBy attributes a lifecycle transition to its initiator.
type TriggeredBy string

const (
	TriggerSystem     TriggeredBy = "system"
	TriggerUser       TriggeredBy = "user"
	TriggerAutomation TriggeredBy = "automation"
)

// LifecycleRecord is the per-instance lifecycle summary, updated
// transactionally with every LifecycleEvent.
type LifecycleRecord struct {
	InstanceID       string
	CurrentState     LifecycleState
	ErrorCount       int
	LastErrorAt      *time.Time
	MaintenanceCount int
	ManualClearance  bool
	Version          int64
	UpdatedAt        time.Time
}

// LifecycleEvent is the immutable record of one transition attempt.
type LifecycleEvent struct {
	ID          string
	InstanceID  string
	FromState   LifecycleState
	ToState     LifecycleState
	TriggeredBy TriggeredBy
	Success     bool
	Detail      string
	OccurredAt  time.Time
}
