package primary

import (
	"context"

	"github.com/example/coord/internal/models"
)

// LifecycleService owns each instance's state machine, driven by explicit
// transition requests, health checks, and maintenance windows.
type LifecycleService interface {
	// CreateInstance registers a new instance in provisioning state.
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*models.PersonaInstance, error)

	// GetInstance retrieves an instance.
	GetInstance(ctx context.Context, instanceID string) (*models.PersonaInstance, error)

	// ListInstances lists instances with optional filters.
	ListInstances(ctx context.Context, role string) ([]*models.PersonaInstance, error)

	// Transition requests a state change. Illegal transitions fail with
	// *models.InvalidTransitionError and leave state unchanged.
	Transition(ctx context.Context, instanceID string, to models.LifecycleState, triggeredBy models.TriggeredBy) error

	// RecordHealthCheck folds a probe result into lifecycle state: failures
	// move active/busy instances to error; a success recovers error to
	// active. Three errors in the rolling window force maintenance.
	RecordHealthCheck(ctx context.Context, instanceID string, healthy bool, detail string) error

	// StartMaintenance enters a maintenance window.
	StartMaintenance(ctx context.Context, instanceID string, triggeredBy models.TriggeredBy) error

	// EndMaintenance closes the window; autoResume returns the instance to
	// active unless manual clearance is pending.
	EndMaintenance(ctx context.Context, instanceID string, autoResume bool) error

	// ClearMaintenance lifts the manual-clearance hold set by forced
	// maintenance.
	ClearMaintenance(ctx context.Context, instanceID string) error

	// History retrieves the lifecycle record and recent events.
	History(ctx context.Context, instanceID string, limit int) (*models.LifecycleRecord, []*models.LifecycleEvent, error)

	// Decommission terminates and permanently removes an instance.
	Decommission(ctx context.Context, instanceID string) error
}

// CreateInstanceRequest carries instance registration at the boundary.
type CreateInstanceRequest struct {
	Name               string
	Role               string
	MaxConcurrentTasks int
	PriorityLevel      int
	SpendLimitDaily    float64
	SpendLimitMonthly  float64
}
