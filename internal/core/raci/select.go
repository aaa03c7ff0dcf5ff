// Package raci contains the pure responsibility-resolution logic: candidate
// tie-breaking, approval gating, and veto evaluation.
package raci

import (
	"sort"
	"time"

	"github.com/example/coord/internal/models"
)

// Candidate is a load snapshot of one eligible responsible instance.
type Candidate struct {
	InstanceID     string
	Role           string
	ActiveTasks    int
	MaxConcurrent  int
	PriorityLevel  int
	LastActivityAt time.Time
}

// Eligible reports whether the candidate can accept another task.
func (c Candidate) Eligible() bool {
	return c.MaxConcurrent == 0 || c.ActiveTasks < c.MaxConcurrent
}

// SelectResponsible picks the responsible instance from the candidates.
// Tie-break order: lowest active task count, then highest priority level, then
// earliest last activity (longest idle), then instance ID for determinism.
// Returns ErrNoResponsibleParty when no candidate is eligible.
func SelectResponsible(candidates []Candidate) (Candidate, error) {
	eligible := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Eligible() {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return Candidate{}, models.ErrNoResponsibleParty
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.ActiveTasks != b.ActiveTasks {
			return a.ActiveTasks < b.ActiveTasks
		}
		if a.PriorityLevel != b.PriorityLevel {
			return a.PriorityLevel > b.PriorityLevel
		}
		if !a.LastActivityAt.Equal(b.LastActivityAt) {
			return a.LastActivityAt.Before(b.LastActivityAt)
		}
		return a.InstanceID < b.InstanceID
	})
	return eligible[0], nil
}

// ApprovalState tracks approval progress for a minApprovals-gated phase.
type ApprovalState struct {
	MinApprovals int
	Approvals    map[string]bool // accountable instance -> approved
	Vetoed       bool
	VetoedBy     string
}

// NewApprovalState starts an empty approval state.
func NewApprovalState(minApprovals int) ApprovalState {
	return ApprovalState{MinApprovals: minApprovals, Approvals: map[string]bool{}}
}

// Approve records an approval from an accountable party. Repeat approvals
// from the same party count once.
func (s *ApprovalState) Approve(instanceID string) {
	s.Approvals[instanceID] = true
}

// Veto records a veto. Vetoes are not reversible through this state; they
// halt advancement until escalation resolves.
func (s *ApprovalState) Veto(instanceID string) {
	s.Vetoed = true
	s.VetoedBy = instanceID
}

// CanAdvance reports whether the phase may advance past the approval gate.
func (s ApprovalState) CanAdvance() bool {
	if s.Vetoed {
		return false
	}
	return len(s.Approvals) >= s.MinApprovals
}

// EscalationDue reports whether the escalation timer has expired without the
// gate opening. The timer starts at assignment.
func (s ApprovalState) EscalationDue(assignedAt, now time.Time, timeout time.Duration) bool {
	if s.CanAdvance() {
		return false
	}
	return timeout > 0 && now.Sub(assignedAt) >= timeout
}

// HasVeto reports whether instanceID holds veto power under the definition.
func HasVeto(def *models.RaciDefinition, instanceID string) bool {
	for _, v := range def.VetoPower {
		if v == instanceID {
			return true
		}
	}
	return false
}
