// Package primary defines the primary ports (driving adapters) for the
// coordination core: the service interfaces the HTTP API and CLI call.
package primary

import (
	"context"

	"github.com/example/coord/internal/models"
)

// ReconcilerService merges authority events into executions and drives RACI
// routing and message dispatch. It is the single place operator-visible
// failure is decided.
type ReconcilerService interface {
	// Ingest applies one state event. Events for one execution apply in
	// strict sequence order per source; a stale or duplicate sequence
	// returns models.ErrStaleSequence. Replaying an applied event mutates
	// nothing.
	Ingest(ctx context.Context, req IngestRequest) (*ReconcileResult, error)

	// GetExecution retrieves the merged execution for a work item.
	GetExecution(ctx context.Context, workItemID string) (*ExecutionView, error)

	// ListExecutions lists executions with optional filters.
	ListExecutions(ctx context.Context, filters ExecutionFilters) ([]*ExecutionView, error)

	// Cancel transitions the execution to cancelled, cancels its pending
	// message timers, and informs assigned instances. In-flight external
	// work is not forcibly terminated.
	Cancel(ctx context.Context, workItemID string) error

	// ReportDispatchFailure feeds a budget denial or unhealthy-instance
	// rejection back for re-resolution.
	ReportDispatchFailure(ctx context.Context, workItemID, instanceID string, cause error) error
}

// IngestRequest carries one state event at the boundary.
type IngestRequest struct {
	WorkItemID string
	WorkflowID string
	TaskType   string
	Source     models.EventSource
	Type       string
	Payload    map[string]string
	Sequence   int64
}

// ReconcileResult reports the effect of one ingested event.
type ReconcileResult struct {
	ExecutionID  string
	MergedPhase  string
	SyncStatus   models.SyncStatus
	PhaseChanged bool
	Assigned     string // instance receiving the handoff, when routed
	Conflicts    []string
}

// ExecutionView is the execution surface exposed at the boundary.
type ExecutionView struct {
	ID              string
	WorkItemID      string
	WorkflowID      string
	TaskType        string
	CurrentPhase    string
	SyncStatus      models.SyncStatus
	Status          models.ExecutionStatus
	AssignedWorkers []string
	ErrorDetails    string
	CreatedAt       string
	UpdatedAt       string
}

// ExecutionFilters contains filter options for listing executions.
type ExecutionFilters struct {
	Status     models.ExecutionStatus
	SyncStatus models.SyncStatus
	Limit      int
}
