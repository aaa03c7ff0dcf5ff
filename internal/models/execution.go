// Package models contains the domain types shared across ports, services
// and adapters.
package models

import "time"

// SyncStatus tracks whether the two authorities agree on an execution.
type SyncStatus string

const (
	SyncInSync    SyncStatus = "in_sync"
	SyncDiverged  SyncStatus = "diverged"
	SyncResolving SyncStatus = "resolving"
)

// ExecutionStatus is the coarse operational status of an execution.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// Terminal returns true when no further events can change the execution.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is the merged view of one work item moving through a workflow.
// At most one execution per work item is non-terminal at any time.
type Execution struct {
	ID              string
	WorkItemID      string
	WorkflowID      string
	TaskType        string
	CurrentPhase    string
	SyncStatus      SyncStatus
	Status          ExecutionStatus
	AssignedWorkers []string
	ErrorDetails    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// EventSource identifies which authority emitted a state event.
type EventSource string

const (
	// SourceAuthorityA is the AI decision graph: authoritative for
	// reasoning outcomes.
	SourceAuthorityA EventSource = "authority_a"

	// SourceAuthorityB is the process engine: authoritative for workflow
	// step completion.
	SourceAuthorityB EventSource = "authority_b"

	// SourceInternal marks events originated by the coordination core
	// itself. They never conflict with either authority.
	SourceInternal EventSource = "internal"
)

// Valid reports whether the source is one of the known values.
func (s EventSource) Valid() bool {
	return s == SourceAuthorityA || s == SourceAuthorityB || s == SourceInternal
}

// StateEvent is one observed fact set from a source. Events carry a
// per-(execution, source) sequence; the reconciler applies them in strict
// increasing order and rejects the rest.
type StateEvent struct {
	ID          string
	ExecutionID string
	Source      EventSource
	Type        string
	Payload     map[string]string
	Sequence    int64
	ReceivedAt  time.Time
}
