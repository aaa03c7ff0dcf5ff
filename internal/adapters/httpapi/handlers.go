package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/example/coord/internal/ctxutil"
	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// readJSON decodes a request body strictly: unknown fields are an error.
func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var transitionErr *models.InvalidTransitionError
	var msgTransitionErr *models.InvalidMessageTransitionError
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrStaleSequence),
		errors.Is(err, models.ErrVersionConflict),
		errors.As(err, &transitionErr),
		errors.As(err, &msgTransitionErr):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, models.ErrBudgetExceeded),
		errors.Is(err, models.ErrNoResponsibleParty):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
}

// ============================================================================
// Executions
// ============================================================================

type ingestEventRequest struct {
	WorkflowID string            `json:"workflowId,omitempty"`
	TaskType   string            `json:"taskType,omitempty"`
	Source     string            `json:"source"`
	Type       string            `json:"type"`
	Payload    map[string]string `json:"payload"`
	Sequence   int64             `json:"sequence"`
}

type reconcileResponse struct {
	ExecutionID  string   `json:"executionId"`
	MergedPhase  string   `json:"mergedPhase"`
	SyncStatus   string   `json:"syncStatus"`
	PhaseChanged bool     `json:"phaseChanged"`
	Assigned     string   `json:"assigned,omitempty"`
	Conflicts    []string `json:"conflicts,omitempty"`
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	res, err := s.services.Reconciler.Ingest(r.Context(), primary.IngestRequest{
		WorkItemID: r.PathValue("workItemID"),
		WorkflowID: req.WorkflowID,
		TaskType:   req.TaskType,
		Source:     models.EventSource(req.Source),
		Type:       req.Type,
		Payload:    req.Payload,
		Sequence:   req.Sequence,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reconcileResponse{
		ExecutionID:  res.ExecutionID,
		MergedPhase:  res.MergedPhase,
		SyncStatus:   string(res.SyncStatus),
		PhaseChanged: res.PhaseChanged,
		Assigned:     res.Assigned,
		Conflicts:    res.Conflicts,
	})
}

type executionResponse struct {
	ID              string   `json:"id"`
	WorkItemID      string   `json:"workItemId"`
	WorkflowID      string   `json:"workflowId,omitempty"`
	TaskType        string   `json:"taskType,omitempty"`
	CurrentPhase    string   `json:"currentPhase"`
	SyncStatus      string   `json:"syncStatus"`
	Status          string   `json:"status"`
	AssignedWorkers []string `json:"assignedWorkers,omitempty"`
	ErrorDetails    string   `json:"errorDetails,omitempty"`
	CreatedAt       string   `json:"createdAt"`
	UpdatedAt       string   `json:"updatedAt"`
}

func toExecutionResponse(view *primary.ExecutionView) executionResponse {
	return executionResponse{
		ID:              view.ID,
		WorkItemID:      view.WorkItemID,
		WorkflowID:      view.WorkflowID,
		TaskType:        view.TaskType,
		CurrentPhase:    view.CurrentPhase,
		SyncStatus:      string(view.SyncStatus),
		Status:          string(view.Status),
		AssignedWorkers: view.AssignedWorkers,
		ErrorDetails:    view.ErrorDetails,
		CreatedAt:       view.CreatedAt,
		UpdatedAt:       view.UpdatedAt,
	}
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	view, err := s.services.Reconciler.GetExecution(r.Context(), r.PathValue("workItemID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toExecutionResponse(view))
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	views, err := s.services.Reconciler.ListExecutions(r.Context(), primary.ExecutionFilters{
		Status:     models.ExecutionStatus(r.URL.Query().Get("status")),
		SyncStatus: models.SyncStatus(r.URL.Query().Get("syncStatus")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]executionResponse, len(views))
	for i, view := range views {
		out[i] = toExecutionResponse(view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Reconciler.Cancel(r.Context(), r.PathValue("workItemID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type approvalRequest struct {
	InstanceID string `json:"instanceId"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	open, err := s.services.Raci.Approve(r.Context(), r.PathValue("executionID"), r.PathValue("phase"), req.InstanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"gateOpen": open})
}

func (s *Server) handleVeto(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.services.Raci.Veto(r.Context(), r.PathValue("executionID"), r.PathValue("phase"), req.InstanceID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Messages
// ============================================================================

type sendMessageRequest struct {
	CorrelationID          string `json:"correlationId,omitempty"`
	ExecutionID            string `json:"executionId,omitempty"`
	Sender                 string `json:"sender"`
	Recipient              string `json:"recipient"`
	Type                   string `json:"type"`
	Priority               string `json:"priority,omitempty"`
	Body                   string `json:"body,omitempty"`
	RequiresAck            bool   `json:"requiresAck,omitempty"`
	AckTimeoutSeconds      int    `json:"ackTimeoutSeconds,omitempty"`
	RequiresResponse       bool   `json:"requiresResponse,omitempty"`
	ResponseTimeoutSeconds int    `json:"responseTimeoutSeconds,omitempty"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	id, err := s.services.Messenger.Send(r.Context(), primary.SendRequest{
		CorrelationID:    req.CorrelationID,
		ExecutionID:      req.ExecutionID,
		Sender:           req.Sender,
		Recipient:        req.Recipient,
		Type:             models.MessageType(req.Type),
		Priority:         models.MessagePriority(req.Priority),
		Body:             req.Body,
		RequiresAck:      req.RequiresAck,
		AckTimeout:       time.Duration(req.AckTimeoutSeconds) * time.Second,
		RequiresResponse: req.RequiresResponse,
		ResponseTimeout:  time.Duration(req.ResponseTimeoutSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

type messageResponse struct {
	ID             string `json:"id"`
	CorrelationID  string `json:"correlationId,omitempty"`
	ExecutionID    string `json:"executionId,omitempty"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	Type           string `json:"type"`
	Priority       string `json:"priority"`
	Body           string `json:"body,omitempty"`
	Status         string `json:"status"`
	Response       string `json:"response,omitempty"`
	Attempts       int    `json:"attempts"`
	CreatedAt      string `json:"createdAt"`
	AcknowledgedAt string `json:"acknowledgedAt,omitempty"`
	RespondedAt    string `json:"respondedAt,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
}

func toMessageResponse(msg *models.Message) messageResponse {
	out := messageResponse{
		ID:            msg.ID,
		CorrelationID: msg.CorrelationID,
		ExecutionID:   msg.ExecutionID,
		Sender:        msg.Sender,
		Recipient:     msg.Recipient,
		Type:          string(msg.Type),
		Priority:      string(msg.Priority),
		Body:          msg.Body,
		Status:        string(msg.Status),
		Response:      msg.Response,
		Attempts:      msg.Attempts,
		CreatedAt:     msg.CreatedAt.UTC().Format(time.RFC3339),
	}
	if msg.AcknowledgedAt != nil {
		out.AcknowledgedAt = msg.AcknowledgedAt.UTC().Format(time.RFC3339)
	}
	if msg.RespondedAt != nil {
		out.RespondedAt = msg.RespondedAt.UTC().Format(time.RFC3339)
	}
	if msg.ExpiresAt != nil {
		out.ExpiresAt = msg.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.services.Messenger.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageResponse(msg))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	msgs, err := s.services.Messenger.ListMessages(r.Context(), primary.MessageFilters{
		ExecutionID: q.Get("executionId"),
		Recipient:   q.Get("recipient"),
		Status:      models.MessageStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]messageResponse, len(msgs))
	for i, msg := range msgs {
		out[i] = toMessageResponse(msg)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAckMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Messenger.Acknowledge(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type respondRequest struct {
	Payload string `json:"payload"`
}

func (s *Server) handleRespondMessage(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.services.Messenger.Respond(r.Context(), r.PathValue("id"), req.Payload); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// RACI
// ============================================================================

type assignmentResponse struct {
	WorkflowID   string   `json:"workflowId"`
	Phase        string   `json:"phase"`
	TaskType     string   `json:"taskType"`
	Responsible  []string `json:"responsible"`
	Accountable  []string `json:"accountable"`
	Consulted    []string `json:"consulted,omitempty"`
	Informed     []string `json:"informed,omitempty"`
	MinApprovals int      `json:"minApprovals,omitempty"`
	VetoPower    []string `json:"vetoPower,omitempty"`
}

func (s *Server) handleResolveRaci(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.services.Raci.Resolve(r.Context(),
		r.PathValue("workflowID"), r.PathValue("phase"), r.PathValue("taskType"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignmentResponse{
		WorkflowID:   assignment.WorkflowID,
		Phase:        assignment.Phase,
		TaskType:     assignment.TaskType,
		Responsible:  assignment.Responsible,
		Accountable:  assignment.Accountable,
		Consulted:    assignment.Consulted,
		Informed:     assignment.Informed,
		MinApprovals: assignment.MinApprovals,
		VetoPower:    assignment.VetoPower,
	})
}

// ============================================================================
// Instances
// ============================================================================

type createInstanceRequest struct {
	Name               string  `json:"name"`
	Role               string  `json:"role"`
	MaxConcurrentTasks int     `json:"maxConcurrentTasks,omitempty"`
	PriorityLevel      int     `json:"priorityLevel,omitempty"`
	SpendLimitDaily    float64 `json:"spendLimitDaily,omitempty"`
	SpendLimitMonthly  float64 `json:"spendLimitMonthly,omitempty"`
}

type instanceResponse struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Role                string  `json:"role"`
	State               string  `json:"state"`
	MaxConcurrentTasks  int     `json:"maxConcurrentTasks"`
	ActiveTasks         int     `json:"activeTasks"`
	PriorityLevel       int     `json:"priorityLevel"`
	SpendLimitDaily     float64 `json:"spendLimitDaily"`
	SpendLimitMonthly   float64 `json:"spendLimitMonthly"`
	CurrentSpendDaily   float64 `json:"currentSpendDaily"`
	CurrentSpendMonthly float64 `json:"currentSpendMonthly"`
	CreatedAt           string  `json:"createdAt"`
}

func toInstanceResponse(inst *models.PersonaInstance) instanceResponse {
	return instanceResponse{
		ID:                  inst.ID,
		Name:                inst.Name,
		Role:                inst.Role,
		State:               string(inst.State),
		MaxConcurrentTasks:  inst.MaxConcurrentTasks,
		ActiveTasks:         inst.ActiveTasks,
		PriorityLevel:       inst.PriorityLevel,
		SpendLimitDaily:     inst.SpendLimitDaily,
		SpendLimitMonthly:   inst.SpendLimitMonthly,
		CurrentSpendDaily:   inst.CurrentSpendDaily,
		CurrentSpendMonthly: inst.CurrentSpendMonthly,
		CreatedAt:           inst.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req createInstanceRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	inst, err := s.services.Lifecycle.CreateInstance(r.Context(), primary.CreateInstanceRequest{
		Name:               req.Name,
		Role:               req.Role,
		MaxConcurrentTasks: req.MaxConcurrentTasks,
		PriorityLevel:      req.PriorityLevel,
		SpendLimitDaily:    req.SpendLimitDaily,
		SpendLimitMonthly:  req.SpendLimitMonthly,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInstanceResponse(inst))
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.services.Lifecycle.GetInstance(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstanceResponse(inst))
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.services.Lifecycle.ListInstances(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]instanceResponse, len(instances))
	for i, inst := range instances {
		out[i] = toInstanceResponse(inst)
	}
	writeJSON(w, http.StatusOK, out)
}

type transitionRequest struct {
	To          string `json:"to"`
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	triggeredBy := models.TriggeredBy(req.TriggeredBy)
	if triggeredBy == "" {
		// Absent an explicit trigger, attribute to the calling actor when the
		// header names one, else assume a human operator.
		switch models.TriggeredBy(ctxutil.ActorFromContext(r.Context())) {
		case models.TriggerSystem:
			triggeredBy = models.TriggerSystem
		case models.TriggerAutomation:
			triggeredBy = models.TriggerAutomation
		default:
			triggeredBy = models.TriggerUser
		}
	}
	err := s.services.Lifecycle.Transition(r.Context(), r.PathValue("id"), models.LifecycleState(req.To), triggeredBy)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type lifecycleEventResponse struct {
	FromState   string `json:"fromState"`
	ToState     string `json:"toState"`
	TriggeredBy string `json:"triggeredBy"`
	Success     bool   `json:"success"`
	Detail      string `json:"detail,omitempty"`
	OccurredAt  string `json:"occurredAt"`
}

type lifecycleHistoryResponse struct {
	InstanceID       string                   `json:"instanceId"`
	CurrentState     string                   `json:"currentState"`
	ErrorCount       int                      `json:"errorCount"`
	MaintenanceCount int                      `json:"maintenanceCount"`
	ManualClearance  bool                     `json:"manualClearance"`
	Events           []lifecycleEventResponse `json:"events"`
}

func (s *Server) handleLifecycleHistory(w http.ResponseWriter, r *http.Request) {
	record, events, err := s.services.Lifecycle.History(r.Context(), r.PathValue("id"), 50)
	if err != nil {
		writeError(w, err)
		return
	}
	out := lifecycleHistoryResponse{
		InstanceID:       record.InstanceID,
		CurrentState:     string(record.CurrentState),
		ErrorCount:       record.ErrorCount,
		MaintenanceCount: record.MaintenanceCount,
		ManualClearance:  record.ManualClearance,
		Events:           make([]lifecycleEventResponse, len(events)),
	}
	for i, ev := range events {
		out.Events[i] = lifecycleEventResponse{
			FromState:   string(ev.FromState),
			ToState:     string(ev.ToState),
			TriggeredBy: string(ev.TriggeredBy),
			Success:     ev.Success,
			Detail:      ev.Detail,
			OccurredAt:  ev.OccurredAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type healthCheckRequest struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

func (s *Server) handleRecordHealthCheck(w http.ResponseWriter, r *http.Request) {
	var req healthCheckRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.services.Lifecycle.RecordHealthCheck(r.Context(), r.PathValue("id"), req.Healthy, req.Detail); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Spend
// ============================================================================

type chargeRequest struct {
	Amount   float64 `json:"amount"`
	Category string  `json:"category,omitempty"`
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	var req chargeRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	decision, err := s.services.Spend.Charge(r.Context(), r.PathValue("id"), req.Amount, req.Category)
	if err != nil && !errors.Is(err, models.ErrBudgetExceeded) {
		writeError(w, err)
		return
	}
	// A denial is a valid outcome, not a transport failure.
	writeJSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
}

func (s *Server) handleSpendStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.services.Spend.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instanceId":        status.InstanceID,
		"dailySpend":        status.DailySpend,
		"dailyLimit":        status.DailyLimit,
		"dailyPercentage":   status.DailyPercentage,
		"monthlySpend":      status.MonthlySpend,
		"monthlyLimit":      status.MonthlyLimit,
		"monthlyPercentage": status.MonthlyPercentage,
	})
}

// ============================================================================
// Monitoring
// ============================================================================

func (s *Server) handleInstanceHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.services.Monitor.Health(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(health)})
}

type recordMetricRequest struct {
	InstanceID string  `json:"instanceId"`
	MetricType string  `json:"metricType"`
	Value      float64 `json:"value"`
}

func (s *Server) handleRecordMetric(w http.ResponseWriter, r *http.Request) {
	var req recordMetricRequest
	if err := readJSON(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if req.InstanceID == "" || req.MetricType == "" {
		writeBadRequest(w, fmt.Errorf("instanceId and metricType are required"))
		return
	}
	if err := s.services.Monitor.Record(r.Context(), req.InstanceID, req.MetricType, req.Value); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type alertResponse struct {
	ID           string `json:"id"`
	InstanceID   string `json:"instanceId,omitempty"`
	ExecutionID  string `json:"executionId,omitempty"`
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Detail       string `json:"detail"`
	Acknowledged bool   `json:"acknowledged"`
	Resolved     bool   `json:"resolved"`
	CreatedAt    string `json:"createdAt"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := primary.AlertFilters{
		InstanceID: q.Get("instanceId"),
		Type:       models.AlertType(q.Get("type")),
	}
	if v := q.Get("resolved"); v != "" {
		resolved := v == "true"
		filters.Resolved = &resolved
	}
	alerts, err := s.services.Monitor.ListAlerts(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]alertResponse, len(alerts))
	for i, a := range alerts {
		out[i] = alertResponse{
			ID:           a.ID,
			InstanceID:   a.InstanceID,
			ExecutionID:  a.ExecutionID,
			Type:         string(a.Type),
			Severity:     string(a.Severity),
			Detail:       a.Detail,
			Acknowledged: a.Acknowledged,
			Resolved:     a.Resolved,
			CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Monitor.AcknowledgeAlert(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
