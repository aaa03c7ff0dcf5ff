package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/coord/internal/core/raci"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/ports/secondary"
)

// RaciServiceImpl implements the RaciService interface.
type RaciServiceImpl struct {
	provider     secondary.RaciDefinitionProvider
	approvalRepo secondary.ApprovalRepository
	instanceRepo secondary.InstanceRepository
	messenger    primary.MessengerService
	logger       *slog.Logger

	now func() time.Time
}

// NewRaciService creates a new RaciService with injected dependencies.
func NewRaciService(
	provider secondary.RaciDefinitionProvider,
	approvalRepo secondary.ApprovalRepository,
	instanceRepo secondary.InstanceRepository,
	messenger primary.MessengerService,
	logger *slog.Logger,
) *RaciServiceImpl {
	return &RaciServiceImpl{
		provider:     provider,
		approvalRepo: approvalRepo,
		instanceRepo: instanceRepo,
		messenger:    messenger,
		logger:       logger,
		now:          time.Now,
	}
}

// Resolve returns the assignment for an exact (workflow, phase, taskType)
// match.
func (s *RaciServiceImpl) Resolve(ctx context.Context, workflowID, phase, taskType string) (*primary.Assignment, error) {
	def, err := s.provider.Get(ctx, workflowID, phase, taskType)
	if err != nil {
		return nil, err
	}
	if len(def.Responsible) == 0 {
		return nil, fmt.Errorf("%s/%s/%s: %w", workflowID, phase, taskType, models.ErrNoResponsibleParty)
	}
	return &primary.Assignment{
		WorkflowID:   def.WorkflowID,
		Phase:        def.Phase,
		TaskType:     def.TaskType,
		Responsible:  def.Responsible,
		Accountable:  def.Accountable,
		Consulted:    def.Consulted,
		Informed:     def.Informed,
		MinApprovals: def.MinApprovals,
		VetoPower:    def.VetoPower,
	}, nil
}

// PickResponsible resolves and then selects the responsible instance by the
// load tie-break, excluding any instance IDs in exclude. Only instances in a
// dispatchable state are candidates.
func (s *RaciServiceImpl) PickResponsible(ctx context.Context, workflowID, phase, taskType string, exclude []string) (*primary.Assignment, string, error) {
	assignment, err := s.Resolve(ctx, workflowID, phase, taskType)
	if err != nil {
		return nil, "", err
	}

	excluded := map[string]bool{}
	for _, id := range exclude {
		excluded[id] = true
	}

	var candidates []raci.Candidate
	for _, id := range assignment.Responsible {
		if excluded[id] {
			continue
		}
		inst, err := s.instanceRepo.GetByID(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		if inst.State != models.StateActive && inst.State != models.StateBusy {
			continue
		}
		candidates = append(candidates, raci.Candidate{
			InstanceID:     inst.ID,
			Role:           inst.Role,
			ActiveTasks:    inst.ActiveTasks,
			MaxConcurrent:  inst.MaxConcurrentTasks,
			PriorityLevel:  inst.PriorityLevel,
			LastActivityAt: inst.LastActivityAt,
		})
	}

	winner, err := raci.SelectResponsible(candidates)
	if err != nil {
		return nil, "", fmt.Errorf("%s/%s/%s: %w", workflowID, phase, taskType, err)
	}
	return assignment, winner.InstanceID, nil
}

// OpenGate opens the approval gate for an execution phase at assignment. A
// definition without minApprovals needs no gate.
func (s *RaciServiceImpl) OpenGate(ctx context.Context, executionID, workflowID, phase, taskType string) error {
	def, err := s.provider.Get(ctx, workflowID, phase, taskType)
	if err != nil {
		return err
	}
	if def.MinApprovals <= 0 {
		return nil
	}

	gate := &secondary.ApprovalGate{
		ExecutionID:       executionID,
		Phase:             phase,
		WorkflowID:        workflowID,
		TaskType:          taskType,
		MinApprovals:      def.MinApprovals,
		EscalationTimeout: time.Duration(def.EscalationTimeoutSeconds) * time.Second,
		AssignedAt:        s.now(),
	}
	if err := s.approvalRepo.CreateGate(ctx, gate); err != nil {
		return err
	}
	s.logger.Info("approval gate opened",
		"execution_id", executionID,
		"phase", phase,
		"min_approvals", def.MinApprovals)
	return nil
}

// Approve records an approval. Returns whether the gate is now open.
func (s *RaciServiceImpl) Approve(ctx context.Context, executionID, phase, instanceID string) (bool, error) {
	gate, err := s.approvalRepo.GetGate(ctx, executionID, phase)
	if err != nil {
		return false, err
	}
	if gate.Vetoed {
		return false, fmt.Errorf("phase %s of %s is vetoed by %s", phase, executionID, gate.VetoedBy)
	}

	def, err := s.provider.Get(ctx, gate.WorkflowID, phase, gate.TaskType)
	if err != nil {
		return false, err
	}
	// Consulted parties advise; only accountable parties clear gates.
	if !contains(def.Accountable, instanceID) {
		return false, fmt.Errorf("instance %s is not an accountable approver for %s/%s", instanceID, gate.WorkflowID, phase)
	}

	if err := s.approvalRepo.RecordApproval(ctx, executionID, phase, instanceID); err != nil {
		return false, err
	}

	open, err := s.gateOpen(ctx, gate)
	if err != nil {
		return false, err
	}
	if open && !gate.Closed {
		if err := s.approvalRepo.CloseGate(ctx, executionID, phase); err != nil {
			return false, err
		}
		s.logger.Info("approval gate cleared", "execution_id", executionID, "phase", phase)
	}
	return open, nil
}

// Veto halts advancement. Only veto-power holders may veto; escalation
// informs the accountable parties.
func (s *RaciServiceImpl) Veto(ctx context.Context, executionID, phase, instanceID string) error {
	gate, err := s.approvalRepo.GetGate(ctx, executionID, phase)
	if err != nil {
		return err
	}
	if gate.Closed {
		return fmt.Errorf("phase %s of %s already cleared its gate", phase, executionID)
	}

	def, err := s.provider.Get(ctx, gate.WorkflowID, phase, gate.TaskType)
	if err != nil {
		return err
	}
	if !raci.HasVeto(def, instanceID) {
		return fmt.Errorf("instance %s holds no veto power for %s/%s", instanceID, gate.WorkflowID, phase)
	}

	if err := s.approvalRepo.RecordVeto(ctx, executionID, phase, instanceID); err != nil {
		return err
	}
	s.logger.Warn("phase vetoed",
		"execution_id", executionID,
		"phase", phase,
		"vetoed_by", instanceID)

	for _, accountable := range def.Accountable {
		_, err := s.messenger.Send(ctx, primary.SendRequest{
			ExecutionID: executionID,
			Sender:      instanceID,
			Recipient:   accountable,
			Type:        models.MessageEscalation,
			Priority:    models.PriorityCritical,
			Body:        fmt.Sprintf("phase %s vetoed by %s", phase, instanceID),
			RequiresAck: true,
		})
		if err != nil {
			s.logger.Error("failed to send veto escalation", "execution_id", executionID, "error", err)
		}
	}
	return nil
}

// CanAdvance reports whether the phase may advance past its gate. A phase
// with no gate advances freely.
func (s *RaciServiceImpl) CanAdvance(ctx context.Context, executionID, phase string) (bool, error) {
	gate, err := s.approvalRepo.GetGate(ctx, executionID, phase)
	if errors.Is(err, models.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return s.gateOpen(ctx, gate)
}

func (s *RaciServiceImpl) gateOpen(ctx context.Context, gate *secondary.ApprovalGate) (bool, error) {
	if gate.Vetoed {
		return false, nil
	}
	approvers, err := s.approvalRepo.Approvals(ctx, gate.ExecutionID, gate.Phase)
	if err != nil {
		return false, err
	}
	state := raci.NewApprovalState(gate.MinApprovals)
	for _, id := range approvers {
		state.Approve(id)
	}
	return state.CanAdvance(), nil
}

// SweepEscalations fires escalation messages for gates whose timeout has
// expired without approval. Each gate escalates once.
func (s *RaciServiceImpl) SweepEscalations(ctx context.Context) (int, error) {
	due, err := s.approvalRepo.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	escalated := 0
	for _, gate := range due {
		open, err := s.gateOpen(ctx, gate)
		if err != nil {
			return escalated, err
		}
		if open {
			if err := s.approvalRepo.CloseGate(ctx, gate.ExecutionID, gate.Phase); err != nil {
				return escalated, err
			}
			continue
		}

		def, err := s.provider.Get(ctx, gate.WorkflowID, gate.Phase, gate.TaskType)
		if err != nil {
			return escalated, err
		}
		targets := def.EscalationTier
		if len(targets) == 0 {
			targets = def.Accountable
		}
		for _, target := range targets {
			_, err := s.messenger.Send(ctx, primary.SendRequest{
				ExecutionID: gate.ExecutionID,
				Sender:      "coordinator",
				Recipient:   target,
				Type:        models.MessageEscalation,
				Priority:    models.PriorityCritical,
				Body: fmt.Sprintf("approval for phase %s of %s pending past %s (need %d, have %s)",
					gate.Phase, gate.ExecutionID, gate.EscalationTimeout, gate.MinApprovals, approvalSummary(ctx, s, gate)),
				RequiresAck: true,
			})
			if err != nil {
				s.logger.Error("failed to send escalation", "execution_id", gate.ExecutionID, "error", err)
			}
		}
		if err := s.approvalRepo.MarkEscalated(ctx, gate.ExecutionID, gate.Phase); err != nil {
			return escalated, err
		}
		escalated++
		s.logger.Warn("approval gate escalated", "execution_id", gate.ExecutionID, "phase", gate.Phase)
	}
	return escalated, nil
}

func approvalSummary(ctx context.Context, s *RaciServiceImpl, gate *secondary.ApprovalGate) string {
	approvers, err := s.approvalRepo.Approvals(ctx, gate.ExecutionID, gate.Phase)
	if err != nil || len(approvers) == 0 {
		return "none"
	}
	return strings.Join(approvers, ", ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Ensure RaciServiceImpl implements the interface.
var _ primary.RaciService = (*RaciServiceImpl)(nil)
