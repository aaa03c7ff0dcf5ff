package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/coord/internal/core/lifecycle"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/ports/secondary"
)

// LifecycleServiceImpl implements the LifecycleService interface.
type LifecycleServiceImpl struct {
	instanceRepo  secondary.InstanceRepository
	lifecycleRepo secondary.LifecycleRepository
	healthRepo    secondary.HealthCheckRepository
	monitor       primary.MonitorService
	errorWindow   time.Duration
	logger        *slog.Logger

	now func() time.Time
}

// NewLifecycleService creates a new LifecycleService with injected dependencies.
func NewLifecycleService(
	instanceRepo secondary.InstanceRepository,
	lifecycleRepo secondary.LifecycleRepository,
	healthRepo secondary.HealthCheckRepository,
	monitor primary.MonitorService,
	errorWindow time.Duration,
	logger *slog.Logger,
) *LifecycleServiceImpl {
	return &LifecycleServiceImpl{
		instanceRepo:  instanceRepo,
		lifecycleRepo: lifecycleRepo,
		healthRepo:    healthRepo,
		monitor:       monitor,
		errorWindow:   errorWindow,
		logger:        logger,
		now:           time.Now,
	}
}

// CreateInstance registers a new instance in provisioning state.
func (s *LifecycleServiceImpl) CreateInstance(ctx context.Context, req primary.CreateInstanceRequest) (*models.PersonaInstance, error) {
	if req.Name == "" || req.Role == "" {
		return nil, fmt.Errorf("instance name and role are required")
	}

	now := s.now()
	inst := &models.PersonaInstance{
		ID:                 newID("INST"),
		Name:               req.Name,
		Role:               req.Role,
		State:              models.StateProvisioning,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		PriorityLevel:      req.PriorityLevel,
		LastActivityAt:     now,
		SpendLimitDaily:    req.SpendLimitDaily,
		SpendLimitMonthly:  req.SpendLimitMonthly,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.instanceRepo.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	record := &models.LifecycleRecord{
		InstanceID:   inst.ID,
		CurrentState: models.StateProvisioning,
	}
	event := &models.LifecycleEvent{
		ID:          newID("LCE"),
		InstanceID:  inst.ID,
		FromState:   models.StateProvisioning,
		ToState:     models.StateProvisioning,
		TriggeredBy: models.TriggerSystem,
		Success:     true,
		Detail:      "instance registered",
		OccurredAt:  now,
	}
	if err := s.lifecycleRepo.RecordTransition(ctx, record, event); err != nil {
		return nil, fmt.Errorf("failed to open lifecycle record: %w", err)
	}

	s.logger.Info("instance created", "instance_id", inst.ID, "name", inst.Name, "role", inst.Role)
	return inst, nil
}

// GetInstance retrieves an instance.
func (s *LifecycleServiceImpl) GetInstance(ctx context.Context, instanceID string) (*models.PersonaInstance, error) {
	return s.instanceRepo.GetByID(ctx, instanceID)
}

// ListInstances lists instances with optional filters.
func (s *LifecycleServiceImpl) ListInstances(ctx context.Context, role string) ([]*models.PersonaInstance, error) {
	instances, err := s.instanceRepo.List(ctx, secondary.InstanceFilters{Role: role})
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	return instances, nil
}

// transitionRetries bounds the optimistic-concurrency retry loop, mirroring
// the charge path: reload and revalidate against the freshest version.
const transitionRetries = 3

// Transition requests a state change. Illegal transitions fail with
// *models.InvalidTransitionError, leave state unchanged, and are still
// recorded in the event log.
func (s *LifecycleServiceImpl) Transition(ctx context.Context, instanceID string, to models.LifecycleState, triggeredBy models.TriggeredBy) error {
	return s.transition(ctx, instanceID, to, triggeredBy, "")
}

func (s *LifecycleServiceImpl) transition(ctx context.Context, instanceID string, to models.LifecycleState, triggeredBy models.TriggeredBy, detail string) error {
	var lastErr error
	for attempt := 0; attempt < transitionRetries; attempt++ {
		err := s.transitionOnce(ctx, instanceID, to, triggeredBy, detail)
		if errors.Is(err, models.ErrVersionConflict) {
			lastErr = err
			continue
		}
		return err
	}
	return fmt.Errorf("failed to transition %s after %d attempts: %w", instanceID, transitionRetries, lastErr)
}

func (s *LifecycleServiceImpl) transitionOnce(ctx context.Context, instanceID string, to models.LifecycleState, triggeredBy models.TriggeredBy, detail string) error {
	inst, err := s.instanceRepo.GetByID(ctx, instanceID)
	if err != nil {
		return err
	}
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil {
		return err
	}
	from := record.CurrentState
	now := s.now()

	if err := lifecycle.Transition(instanceID, from, to); err != nil {
		// The failed attempt is audit-relevant even though state holds.
		event := &models.LifecycleEvent{
			ID:          newID("LCE"),
			InstanceID:  instanceID,
			FromState:   from,
			ToState:     to,
			TriggeredBy: triggeredBy,
			Success:     false,
			Detail:      err.Error(),
			OccurredAt:  now,
		}
		if appendErr := s.lifecycleRepo.AppendEvent(ctx, event); appendErr != nil {
			s.logger.Error("failed to record rejected transition", "instance_id", instanceID, "error", appendErr)
		}
		return err
	}

	record.CurrentState = to
	switch to {
	case models.StateError:
		record.ErrorCount++
		record.LastErrorAt = &now
	case models.StateMaintenance:
		record.MaintenanceCount++
	case models.StateActive:
		if from == models.StateMaintenance {
			record.ErrorCount = 0
			record.LastErrorAt = nil
		}
	}

	event := &models.LifecycleEvent{
		ID:          newID("LCE"),
		InstanceID:  instanceID,
		FromState:   from,
		ToState:     to,
		TriggeredBy: triggeredBy,
		Success:     true,
		Detail:      detail,
		OccurredAt:  now,
	}
	// The version-guarded instance write goes first: a concurrent update
	// aborts the attempt before anything is recorded, and the retry loop
	// replays against the reloaded version.
	if err := s.instanceRepo.UpdateState(ctx, instanceID, to, inst.Version); err != nil {
		return err
	}
	if err := s.lifecycleRepo.RecordTransition(ctx, record, event); err != nil {
		return err
	}

	s.logger.Info("instance transitioned",
		"instance_id", instanceID,
		"from", string(from),
		"to", string(to),
		"triggered_by", string(triggeredBy))

	if to == models.StateError {
		s.afterError(ctx, instanceID, record)
	}
	return nil
}

// afterError applies the error budget: enough errors inside the rolling
// window force maintenance with manual clearance.
func (s *LifecycleServiceImpl) afterError(ctx context.Context, instanceID string, record *models.LifecycleRecord) {
	count, err := s.lifecycleRepo.CountRecentErrors(ctx, instanceID, s.now().Add(-s.errorWindow))
	if err != nil {
		s.logger.Error("failed to count recent errors", "instance_id", instanceID, "error", err)
		return
	}
	if !lifecycle.ShouldForceMaintenance(count, record.LastErrorAt, s.now(), s.errorWindow) {
		return
	}

	if err := s.forceMaintenance(ctx, instanceID); err != nil {
		s.logger.Error("failed to force maintenance", "instance_id", instanceID, "error", err)
		return
	}
	detail := fmt.Sprintf("forced maintenance after %d errors in %s", count, s.errorWindow)
	if err := s.monitor.RaiseAlert(ctx, instanceID, "", models.AlertInstanceUnhealthy, models.SeverityCritical, detail); err != nil {
		s.logger.Error("failed to raise maintenance alert", "instance_id", instanceID, "error", err)
	}
}

func (s *LifecycleServiceImpl) forceMaintenance(ctx context.Context, instanceID string) error {
	if err := s.transition(ctx, instanceID, models.StateMaintenance, models.TriggerAutomation, "error budget exhausted"); err != nil {
		return err
	}
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil {
		return err
	}
	record.ManualClearance = true
	event := &models.LifecycleEvent{
		ID:          newID("LCE"),
		InstanceID:  instanceID,
		FromState:   models.StateMaintenance,
		ToState:     models.StateMaintenance,
		TriggeredBy: models.TriggerAutomation,
		Success:     true,
		Detail:      "manual clearance required",
		OccurredAt:  s.now(),
	}
	return s.lifecycleRepo.RecordTransition(ctx, record, event)
}

// RecordHealthCheck folds a probe result into lifecycle state.
func (s *LifecycleServiceImpl) RecordHealthCheck(ctx context.Context, instanceID string, healthy bool, detail string) error {
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil {
		return err
	}

	check := &secondary.HealthCheck{
		ID:         newID("HC"),
		InstanceID: instanceID,
		Healthy:    healthy,
		Detail:     detail,
		CheckedAt:  s.now(),
	}
	if err := s.healthRepo.Append(ctx, check); err != nil {
		return fmt.Errorf("failed to record health check: %w", err)
	}

	switch {
	case !healthy && (record.CurrentState == models.StateActive || record.CurrentState == models.StateBusy):
		return s.transition(ctx, instanceID, models.StateError, models.TriggerAutomation, detail)
	case healthy && record.CurrentState == models.StateError:
		return s.transition(ctx, instanceID, models.StateActive, models.TriggerAutomation, "health check recovered")
	}
	return nil
}

// StartMaintenance enters a maintenance window.
func (s *LifecycleServiceImpl) StartMaintenance(ctx context.Context, instanceID string, triggeredBy models.TriggeredBy) error {
	return s.transition(ctx, instanceID, models.StateMaintenance, triggeredBy, "maintenance window opened")
}

// EndMaintenance closes the window; autoResume returns the instance to
// active unless manual clearance is pending.
func (s *LifecycleServiceImpl) EndMaintenance(ctx context.Context, instanceID string, autoResume bool) error {
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil {
		return err
	}
	if record.CurrentState != models.StateMaintenance {
		return &models.InvalidTransitionError{InstanceID: instanceID, From: record.CurrentState, To: models.StateActive}
	}

	target, resume := lifecycle.ResumeTarget(autoResume, record.ManualClearance)
	if !resume {
		s.logger.Info("maintenance window closed without resume",
			"instance_id", instanceID,
			"manual_clearance", record.ManualClearance)
		return nil
	}
	return s.transition(ctx, instanceID, target, models.TriggerSystem, "maintenance window closed")
}

// ClearMaintenance lifts the manual-clearance hold set by forced maintenance.
func (s *LifecycleServiceImpl) ClearMaintenance(ctx context.Context, instanceID string) error {
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil {
		return err
	}
	if !record.ManualClearance {
		return nil
	}
	record.ManualClearance = false
	record.ErrorCount = 0
	record.LastErrorAt = nil
	event := &models.LifecycleEvent{
		ID:          newID("LCE"),
		InstanceID:  instanceID,
		FromState:   record.CurrentState,
		ToState:     record.CurrentState,
		TriggeredBy: models.TriggerUser,
		Success:     true,
		Detail:      "manual clearance lifted",
		OccurredAt:  s.now(),
	}
	return s.lifecycleRepo.RecordTransition(ctx, record, event)
}

// History retrieves the lifecycle record and recent events.
func (s *LifecycleServiceImpl) History(ctx context.Context, instanceID string, limit int) (*models.LifecycleRecord, []*models.LifecycleEvent, error) {
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil {
		return nil, nil, err
	}
	events, err := s.lifecycleRepo.ListEvents(ctx, instanceID, limit)
	if err != nil {
		return nil, nil, err
	}
	return record, events, nil
}

// Decommission terminates and permanently removes an instance. Historical
// events, messages, and alerts cascade with it.
func (s *LifecycleServiceImpl) Decommission(ctx context.Context, instanceID string) error {
	record, err := s.lifecycleRepo.GetRecord(ctx, instanceID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}

	if record != nil && !record.CurrentState.Terminal() {
		if record.CurrentState != models.StateTerminating {
			if err := s.transition(ctx, instanceID, models.StateTerminating, models.TriggerUser, "decommission requested"); err != nil {
				return err
			}
		}
		if err := s.transition(ctx, instanceID, models.StateTerminated, models.TriggerSystem, "decommissioned"); err != nil {
			return err
		}
	}

	if err := s.instanceRepo.Decommission(ctx, instanceID); err != nil {
		return fmt.Errorf("failed to decommission instance: %w", err)
	}
	s.logger.Info("instance decommissioned", "instance_id", instanceID)
	return nil
}

// Ensure LifecycleServiceImpl implements the interface.
var _ primary.LifecycleService = (*LifecycleServiceImpl)(nil)
