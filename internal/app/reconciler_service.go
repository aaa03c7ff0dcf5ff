package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/coord/internal/core/reconcile"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/ports/secondary"
)

// Phases that terminate an execution when reported by the designated
// authority.
const (
	phaseCompleted = "completed"
	phaseFailed    = "failed"
)

// ReconcilerServiceImpl implements the ReconcilerService interface. Events
// for one work item are serialized through a per-item lock; events for
// different work items reconcile concurrently.
type ReconcilerServiceImpl struct {
	executionRepo secondary.ExecutionRepository
	eventRepo     secondary.StateEventRepository
	instanceRepo  secondary.InstanceRepository
	raci          primary.RaciService
	messenger     primary.MessengerService
	monitor       primary.MonitorService
	authority     reconcile.Authority
	window        time.Duration
	logger        *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewReconcilerService creates a new ReconcilerService with injected dependencies.
func NewReconcilerService(
	executionRepo secondary.ExecutionRepository,
	eventRepo secondary.StateEventRepository,
	instanceRepo secondary.InstanceRepository,
	raciService primary.RaciService,
	messenger primary.MessengerService,
	monitor primary.MonitorService,
	authority reconcile.Authority,
	window time.Duration,
	logger *slog.Logger,
) *ReconcilerServiceImpl {
	return &ReconcilerServiceImpl{
		executionRepo: executionRepo,
		eventRepo:     eventRepo,
		instanceRepo:  instanceRepo,
		raci:          raciService,
		messenger:     messenger,
		monitor:       monitor,
		authority:     authority,
		window:        window,
		logger:        logger,
		locks:         map[string]*sync.Mutex{},
		now:           time.Now,
	}
}

func (s *ReconcilerServiceImpl) lockWorkItem(workItemID string) func() {
	s.mu.Lock()
	l, ok := s.locks[workItemID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[workItemID] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Ingest applies one state event.
func (s *ReconcilerServiceImpl) Ingest(ctx context.Context, req primary.IngestRequest) (*primary.ReconcileResult, error) {
	if req.WorkItemID == "" {
		return nil, fmt.Errorf("work item ID is required")
	}
	if !req.Source.Valid() {
		return nil, fmt.Errorf("unknown event source %q", req.Source)
	}
	if req.Sequence <= 0 {
		return nil, fmt.Errorf("event sequence must be positive")
	}

	unlock := s.lockWorkItem(req.WorkItemID)
	defer unlock()

	now := s.now()
	exec, state, created, err := s.loadOrCreate(ctx, req, now)
	if err != nil {
		return nil, err
	}
	// Events reference their execution row, so a fresh execution must be
	// persisted before its first event is journaled.
	if created {
		if err := s.save(ctx, exec, state, true); err != nil {
			return nil, err
		}
	}

	last, err := s.eventRepo.LastSequence(ctx, exec.ID, req.Source)
	if err != nil {
		return nil, err
	}
	if !reconcile.AcceptSequence(last, req.Sequence) {
		return nil, fmt.Errorf("event %d for %s from %s (last applied %d): %w",
			req.Sequence, exec.ID, req.Source, last, models.ErrStaleSequence)
	}

	event := &models.StateEvent{
		ID:          newID("EVT"),
		ExecutionID: exec.ID,
		Source:      req.Source,
		Type:        req.Type,
		Payload:     req.Payload,
		Sequence:    req.Sequence,
		ReceivedAt:  now,
	}
	res := reconcile.Apply(state, s.authority, event, s.window)

	exec.SyncStatus = res.SyncStatus
	exec.UpdatedAt = now
	if res.PhaseChanged {
		exec.CurrentPhase = res.NewPhase
	}

	for _, conflict := range res.NewConflicts {
		detail := fmt.Sprintf("field %q: %s holds %q, %s reported %q",
			conflict.Field, s.authority.SourceFor(exec.TaskType, conflict.Field),
			conflict.AuthoritativeValue, conflict.ConflictingSource, conflict.ConflictingValue)
		if err := s.monitor.RaiseAlert(ctx, "", exec.ID, models.AlertStateConflict, models.SeverityWarning, detail); err != nil {
			s.logger.Error("failed to raise conflict alert", "execution_id", exec.ID, "error", err)
		}
	}

	result := &primary.ReconcileResult{
		ExecutionID:  exec.ID,
		MergedPhase:  exec.CurrentPhase,
		SyncStatus:   exec.SyncStatus,
		PhaseChanged: res.PhaseChanged,
	}
	for field := range state.Conflicts {
		result.Conflicts = append(result.Conflicts, field)
	}

	switch {
	case res.PhaseChanged && res.NewPhase == phaseCompleted:
		s.finish(ctx, exec, models.ExecutionCompleted, "")
	case res.PhaseChanged && res.NewPhase == phaseFailed:
		s.finish(ctx, exec, models.ExecutionFailed, "authority reported failure")
	case res.PhaseChanged:
		assigned, err := s.route(ctx, exec, res.NewPhase, nil)
		if err != nil {
			return nil, err
		}
		result.Assigned = assigned
	}

	if err := s.save(ctx, exec, state, false); err != nil {
		return nil, err
	}
	// The event is journaled after the merged state commits: a failure
	// anywhere above leaves the sequence unclaimed, so the sender's retry
	// is accepted instead of rejected as stale.
	if err := s.eventRepo.Append(ctx, event); err != nil {
		return nil, err
	}

	s.logger.Info("event reconciled",
		"execution_id", exec.ID,
		"work_item_id", exec.WorkItemID,
		"source", string(req.Source),
		"sequence", req.Sequence,
		"phase", exec.CurrentPhase,
		"sync_status", string(exec.SyncStatus))
	return result, nil
}

func (s *ReconcilerServiceImpl) loadOrCreate(ctx context.Context, req primary.IngestRequest, now time.Time) (*models.Execution, *reconcile.State, bool, error) {
	exec, blob, err := s.executionRepo.GetActiveByWorkItem(ctx, req.WorkItemID)
	if err == nil {
		state, err := unmarshalState(blob, exec.TaskType)
		if err != nil {
			return nil, nil, false, err
		}
		return exec, state, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, nil, false, err
	}

	exec = &models.Execution{
		ID:         newID("EXEC"),
		WorkItemID: req.WorkItemID,
		WorkflowID: req.WorkflowID,
		TaskType:   req.TaskType,
		SyncStatus: models.SyncInSync,
		Status:     models.ExecutionRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	state := reconcile.NewState(req.TaskType)
	return exec, &state, true, nil
}

func unmarshalState(blob []byte, taskType string) (*reconcile.State, error) {
	state := reconcile.NewState(taskType)
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &state); err != nil {
			return nil, fmt.Errorf("failed to unmarshal merge state: %w", err)
		}
	}
	if state.Merged == nil {
		state.Merged = map[string]string{}
	}
	if state.Snapshots == nil {
		state.Snapshots = map[models.EventSource]reconcile.Snapshot{}
	}
	if state.Conflicts == nil {
		state.Conflicts = map[string]reconcile.Conflict{}
	}
	return &state, nil
}

func (s *ReconcilerServiceImpl) save(ctx context.Context, exec *models.Execution, state *reconcile.State, created bool) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal merge state: %w", err)
	}
	if created {
		return s.executionRepo.Create(ctx, exec, blob)
	}
	return s.executionRepo.Update(ctx, exec, blob)
}

// route resolves responsibility for the new phase and dispatches the handoff.
// A phase with no matching definition needs no routing.
func (s *ReconcilerServiceImpl) route(ctx context.Context, exec *models.Execution, phase string, exclude []string) (string, error) {
	assignment, winner, err := s.raci.PickResponsible(ctx, exec.WorkflowID, phase, exec.TaskType, exclude)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "", nil
	case errors.Is(err, models.ErrNoResponsibleParty):
		exec.ErrorDetails = fmt.Sprintf("no responsible party for phase %s", phase)
		detail := fmt.Sprintf("execution %s stalled at phase %s: %v", exec.ID, phase, err)
		if alertErr := s.monitor.RaiseAlert(ctx, "", exec.ID, models.AlertEscalation, models.SeverityCritical, detail); alertErr != nil {
			s.logger.Error("failed to raise routing alert", "execution_id", exec.ID, "error", alertErr)
		}
		return "", nil
	case err != nil:
		return "", err
	}

	if err := s.raci.OpenGate(ctx, exec.ID, exec.WorkflowID, phase, exec.TaskType); err != nil {
		return "", err
	}

	if !contains(exec.AssignedWorkers, winner) {
		exec.AssignedWorkers = append(exec.AssignedWorkers, winner)
	}
	if err := s.instanceRepo.AdjustActiveTasks(ctx, winner, 1); err != nil {
		return "", err
	}

	_, err = s.messenger.Send(ctx, primary.SendRequest{
		ExecutionID:      exec.ID,
		Sender:           "coordinator",
		Recipient:        winner,
		Type:             models.MessageHandoff,
		Priority:         models.PriorityHigh,
		Body:             fmt.Sprintf("phase %s of %s assigned", phase, exec.WorkItemID),
		RequiresAck:      true,
		RequiresResponse: true,
	})
	if err != nil {
		return "", err
	}

	for _, informed := range assignment.Informed {
		_, err := s.messenger.Send(ctx, primary.SendRequest{
			ExecutionID: exec.ID,
			Sender:      "coordinator",
			Recipient:   informed,
			Type:        models.MessageInform,
			Priority:    models.PriorityLow,
			Body:        fmt.Sprintf("phase %s of %s assigned to %s", phase, exec.WorkItemID, winner),
		})
		if err != nil {
			s.logger.Error("failed to inform", "execution_id", exec.ID, "recipient", informed, "error", err)
		}
	}

	s.logger.Info("phase routed",
		"execution_id", exec.ID,
		"phase", phase,
		"assigned", winner)
	return winner, nil
}

// finish closes out the execution and releases its workers and timers.
func (s *ReconcilerServiceImpl) finish(ctx context.Context, exec *models.Execution, status models.ExecutionStatus, detail string) {
	now := s.now()
	exec.Status = status
	exec.CompletedAt = &now
	if detail != "" {
		exec.ErrorDetails = detail
	}
	for _, worker := range exec.AssignedWorkers {
		if err := s.instanceRepo.AdjustActiveTasks(ctx, worker, -1); err != nil {
			s.logger.Error("failed to release worker", "execution_id", exec.ID, "instance_id", worker, "error", err)
		}
	}
	if err := s.messenger.CancelExecution(ctx, exec.ID); err != nil {
		s.logger.Error("failed to cancel message timers", "execution_id", exec.ID, "error", err)
	}
	s.logger.Info("execution finished",
		"execution_id", exec.ID,
		"status", string(status))
}

// GetExecution retrieves the merged execution for a work item.
func (s *ReconcilerServiceImpl) GetExecution(ctx context.Context, workItemID string) (*primary.ExecutionView, error) {
	exec, _, err := s.executionRepo.GetActiveByWorkItem(ctx, workItemID)
	if err != nil {
		return nil, err
	}
	return executionToView(exec), nil
}

// ListExecutions lists executions with optional filters.
func (s *ReconcilerServiceImpl) ListExecutions(ctx context.Context, filters primary.ExecutionFilters) ([]*primary.ExecutionView, error) {
	execs, err := s.executionRepo.List(ctx, secondary.ExecutionFilters{
		Status:     filters.Status,
		SyncStatus: filters.SyncStatus,
		Limit:      filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	views := make([]*primary.ExecutionView, len(execs))
	for i, exec := range execs {
		views[i] = executionToView(exec)
	}
	return views, nil
}

// Cancel transitions the execution to cancelled and informs assigned
// instances. In-flight external work is not forcibly terminated.
func (s *ReconcilerServiceImpl) Cancel(ctx context.Context, workItemID string) error {
	unlock := s.lockWorkItem(workItemID)
	defer unlock()

	exec, state, err := s.executionRepo.GetActiveByWorkItem(ctx, workItemID)
	if err != nil {
		return err
	}

	workers := append([]string(nil), exec.AssignedWorkers...)
	s.finish(ctx, exec, models.ExecutionCancelled, "cancelled by operator")
	if err := s.executionRepo.Update(ctx, exec, state); err != nil {
		return err
	}

	for _, worker := range workers {
		_, err := s.messenger.Send(ctx, primary.SendRequest{
			ExecutionID: exec.ID,
			Sender:      "coordinator",
			Recipient:   worker,
			Type:        models.MessageInform,
			Priority:    models.PriorityHigh,
			Body:        fmt.Sprintf("execution %s cancelled", exec.WorkItemID),
		})
		if err != nil {
			s.logger.Error("failed to inform of cancellation", "execution_id", exec.ID, "recipient", worker, "error", err)
		}
	}
	return nil
}

// ReportDispatchFailure feeds a budget denial or unhealthy-instance
// rejection back for re-resolution. The failed instance is excluded from the
// retry; with no replacement the execution fails visibly.
func (s *ReconcilerServiceImpl) ReportDispatchFailure(ctx context.Context, workItemID, instanceID string, cause error) error {
	unlock := s.lockWorkItem(workItemID)
	defer unlock()

	exec, blob, err := s.executionRepo.GetActiveByWorkItem(ctx, workItemID)
	if err != nil {
		return err
	}
	state, err := unmarshalState(blob, exec.TaskType)
	if err != nil {
		return err
	}

	if contains(exec.AssignedWorkers, instanceID) {
		exec.AssignedWorkers = remove(exec.AssignedWorkers, instanceID)
		if err := s.instanceRepo.AdjustActiveTasks(ctx, instanceID, -1); err != nil {
			s.logger.Error("failed to release worker", "execution_id", exec.ID, "instance_id", instanceID, "error", err)
		}
	}

	s.logger.Warn("dispatch failed",
		"execution_id", exec.ID,
		"instance_id", instanceID,
		"cause", cause)

	assigned, err := s.route(ctx, exec, exec.CurrentPhase, []string{instanceID})
	if err != nil {
		return err
	}
	if assigned == "" && exec.ErrorDetails != "" {
		s.finish(ctx, exec, models.ExecutionFailed,
			fmt.Sprintf("dispatch to %s failed (%v) and no replacement is available", instanceID, cause))
	}
	exec.UpdatedAt = s.now()
	return s.save(ctx, exec, state, false)
}

// HandleMessageTimeout receives messenger timeout notifications. An
// unacknowledged handoff means the assignee never picked the task up, so it
// re-resolves. A response timeout is surfaced and left to the operator.
func (s *ReconcilerServiceImpl) HandleMessageTimeout(ctx context.Context, msg *models.Message, kind primary.TimeoutKind) {
	if msg.ExecutionID == "" || msg.Type != models.MessageHandoff {
		return
	}

	switch kind {
	case primary.TimeoutAck:
		exec, _, err := s.executionRepo.GetByID(ctx, msg.ExecutionID)
		if err != nil {
			s.logger.Error("timeout for unknown execution", "execution_id", msg.ExecutionID, "error", err)
			return
		}
		if exec.Status.Terminal() {
			return
		}
		if err := s.ReportDispatchFailure(ctx, exec.WorkItemID, msg.Recipient, fmt.Errorf("handoff unacknowledged")); err != nil {
			s.logger.Error("failed to re-resolve after ack timeout", "execution_id", msg.ExecutionID, "error", err)
		}
	case primary.TimeoutResponse:
		exec, _, err := s.executionRepo.GetByID(ctx, msg.ExecutionID)
		if err != nil || exec.Status.Terminal() {
			return
		}
		unlock := s.lockWorkItem(exec.WorkItemID)
		defer unlock()
		// Reload under the lock so a concurrent ingest's merge is not
		// clobbered with a stale blob.
		exec, blob, err := s.executionRepo.GetByID(ctx, msg.ExecutionID)
		if err != nil || exec.Status.Terminal() {
			return
		}
		exec.ErrorDetails = fmt.Sprintf("task handed to %s timed out awaiting response", msg.Recipient)
		exec.UpdatedAt = s.now()
		if err := s.executionRepo.Update(ctx, exec, blob); err != nil {
			s.logger.Error("failed to record response timeout", "execution_id", msg.ExecutionID, "error", err)
		}
	}
}

func executionToView(exec *models.Execution) *primary.ExecutionView {
	view := &primary.ExecutionView{
		ID:              exec.ID,
		WorkItemID:      exec.WorkItemID,
		WorkflowID:      exec.WorkflowID,
		TaskType:        exec.TaskType,
		CurrentPhase:    exec.CurrentPhase,
		SyncStatus:      exec.SyncStatus,
		Status:          exec.Status,
		AssignedWorkers: exec.AssignedWorkers,
		ErrorDetails:    exec.ErrorDetails,
		CreatedAt:       exec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       exec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	return view
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}

// Ensure ReconcilerServiceImpl implements its interfaces.
var (
	_ primary.ReconcilerService = (*ReconcilerServiceImpl)(nil)
	_ primary.TimeoutHandler    = (*ReconcilerServiceImpl)(nil)
)
