package secondary

import (
	"context"
	"time"

	"github.com/example/coord/internal/models"
)

// RaciDefinitionProvider resolves responsibility matrices. Definitions are
// configuration: loaded once at startup and immutable during an execution's
// lifetime. Lookup is exact-match; a miss returns models.ErrNotFound.
type RaciDefinitionProvider interface {
	Get(ctx context.Context, workflowID, phase, taskType string) (*models.RaciDefinition, error)
}

// ApprovalRepository persists approval gates for minApprovals-gated phases.
type ApprovalRepository interface {
	// CreateGate opens a gate at assignment time.
	CreateGate(ctx context.Context, gate *ApprovalGate) error

	// GetGate retrieves the gate for an execution phase, or models.ErrNotFound.
	GetGate(ctx context.Context, executionID, phase string) (*ApprovalGate, error)

	// RecordApproval adds an approval; repeat approvals are idempotent.
	RecordApproval(ctx context.Context, executionID, phase, instanceID string) error

	// RecordVeto marks the gate vetoed.
	RecordVeto(ctx context.Context, executionID, phase, instanceID string) error

	// Approvals lists the distinct approvers for a gate.
	Approvals(ctx context.Context, executionID, phase string) ([]string, error)

	// MarkEscalated stamps the gate escalated so the timer fires once.
	MarkEscalated(ctx context.Context, executionID, phase string) error

	// CloseGate marks the gate closed once quorum is reached.
	CloseGate(ctx context.Context, executionID, phase string) error

	// ListDue returns open, unescalated gates whose escalation timeout has
	// expired as of now.
	ListDue(ctx context.Context, now time.Time) ([]*ApprovalGate, error)
}

// ApprovalGate is one approval gate as stored.
type ApprovalGate struct {
	ExecutionID       string
	Phase             string
	TaskType          string
	WorkflowID        string
	MinApprovals      int
	EscalationTimeout time.Duration
	AssignedAt        time.Time
	Escalated         bool
	Vetoed            bool
	VetoedBy          string
	Closed            bool
}
