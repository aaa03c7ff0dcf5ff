package primary

import "context"

// RaciService resolves responsibility for task phases and manages approval
// gates, escalation timers, and vetoes.
type RaciService interface {
	// Resolve returns the assignment for an exact (workflow, phase, taskType)
	// match. An empty responsible set is models.ErrNoResponsibleParty.
	Resolve(ctx context.Context, workflowID, phase, taskType string) (*Assignment, error)

	// PickResponsible resolves and then selects the responsible instance by
	// the load tie-break, excluding any instance IDs in exclude.
	PickResponsible(ctx context.Context, workflowID, phase, taskType string, exclude []string) (*Assignment, string, error)

	// OpenGate opens the approval gate for an execution phase at assignment.
	OpenGate(ctx context.Context, executionID, workflowID, phase, taskType string) error

	// Approve records an accountable party's approval. Returns whether the
	// gate is now open.
	Approve(ctx context.Context, executionID, phase, instanceID string) (bool, error)

	// Veto halts advancement; escalation informs the accountable parties.
	Veto(ctx context.Context, executionID, phase, instanceID string) error

	// CanAdvance reports whether the phase may advance past its gate.
	CanAdvance(ctx context.Context, executionID, phase string) (bool, error)

	// SweepEscalations fires escalation messages for gates whose timeout has
	// expired without approval. Called periodically by the serve loop.
	SweepEscalations(ctx context.Context) (int, error)
}

// Assignment is the resolved responsibility set for a task phase.
type Assignment struct {
	WorkflowID   string
	Phase        string
	TaskType     string
	Responsible  []string
	Accountable  []string
	Consulted    []string
	Informed     []string
	MinApprovals int
	VetoPower    []string
}
