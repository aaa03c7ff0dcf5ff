// Package secondary defines the secondary ports (driven adapters) for the
// coordination core. These are the interfaces through which the application
// drives persistence and transport.
package secondary

import (
	"context"
	"time"

	"github.com/example/coord/internal/models"
)

// ExecutionRepository persists merged execution records. The merge state blob
// (per-source snapshots and outstanding conflicts) is opaque to storage.
type ExecutionRepository interface {
	// Create persists a new execution.
	Create(ctx context.Context, exec *models.Execution, mergeState []byte) error

	// GetByID retrieves an execution by its ID.
	GetByID(ctx context.Context, id string) (*models.Execution, []byte, error)

	// GetActiveByWorkItem retrieves the single non-terminal execution for a
	// work item, or models.ErrNotFound.
	GetActiveByWorkItem(ctx context.Context, workItemID string) (*models.Execution, []byte, error)

	// Update updates an existing execution and its merge state.
	Update(ctx context.Context, exec *models.Execution, mergeState []byte) error

	// List retrieves executions matching the filters.
	List(ctx context.Context, filters ExecutionFilters) ([]*models.Execution, error)
}

// ExecutionFilters contains filter options for querying executions.
type ExecutionFilters struct {
	Status     models.ExecutionStatus
	SyncStatus models.SyncStatus
	Limit      int
}

// StateEventRepository is the append-only event log. Events are never
// mutated or deleted.
type StateEventRepository interface {
	// Append persists a new state event.
	Append(ctx context.Context, event *models.StateEvent) error

	// LastSequence returns the highest applied sequence for an execution and
	// source, or zero when none.
	LastSequence(ctx context.Context, executionID string, source models.EventSource) (int64, error)

	// ListByExecution retrieves events in arrival order.
	ListByExecution(ctx context.Context, executionID string) ([]*models.StateEvent, error)
}

// InstanceRepository persists persona instances. Spend and lifecycle updates
// carry the expected version for optimistic concurrency; a mismatch returns
// models.ErrVersionConflict.
type InstanceRepository interface {
	// Create persists a new instance.
	Create(ctx context.Context, inst *models.PersonaInstance) error

	// GetByID retrieves an instance by its ID.
	GetByID(ctx context.Context, id string) (*models.PersonaInstance, error)

	// List retrieves instances matching the filters.
	List(ctx context.Context, filters InstanceFilters) ([]*models.PersonaInstance, error)

	// UpdateSpend writes the spend counters guarded by version.
	UpdateSpend(ctx context.Context, id string, daily, monthly float64, dailyStart, monthlyStart time.Time, version int64) error

	// UpdateState writes the lifecycle state guarded by version.
	UpdateState(ctx context.Context, id string, state models.LifecycleState, version int64) error

	// AdjustActiveTasks changes the active task count by delta and touches
	// last_activity.
	AdjustActiveTasks(ctx context.Context, id string, delta int) error

	// Decommission permanently removes an instance and cascades to its
	// dependent rows. The only physical delete in the system.
	Decommission(ctx context.Context, id string) error
}

// InstanceFilters contains filter options for querying instances.
type InstanceFilters struct {
	Role   string
	States []models.LifecycleState
}

// LifecycleRepository persists lifecycle records and their event log.
type LifecycleRepository interface {
	// GetRecord retrieves the lifecycle record for an instance.
	GetRecord(ctx context.Context, instanceID string) (*models.LifecycleRecord, error)

	// RecordTransition writes the updated record and appends the event in one
	// transaction, guarded by the record version.
	RecordTransition(ctx context.Context, record *models.LifecycleRecord, event *models.LifecycleEvent) error

	// AppendEvent appends a lifecycle event without touching the record
	// (failed transition attempts are still recorded).
	AppendEvent(ctx context.Context, event *models.LifecycleEvent) error

	// ListEvents retrieves lifecycle events newest first.
	ListEvents(ctx context.Context, instanceID string, limit int) ([]*models.LifecycleEvent, error)

	// CountRecentErrors counts error entries inside the rolling window.
	CountRecentErrors(ctx context.Context, instanceID string, since time.Time) (int, error)
}
