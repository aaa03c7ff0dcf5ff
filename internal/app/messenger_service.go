package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/primary"
	"github.com/example/coord/internal/ports/secondary"
)

// MessengerTuning carries the protocol knobs.
type MessengerTuning struct {
	DefaultAckTimeout      time.Duration
	DefaultResponseTimeout time.Duration
	MaxRedeliveries        int
	AgingThreshold         time.Duration
}

// MessengerServiceImpl implements the MessengerService interface. Timers live
// in process; Recover rebuilds them from persisted state after a restart.
type MessengerServiceImpl struct {
	messageRepo secondary.MessageRepository
	bus         secondary.MessageBus
	monitor     primary.MonitorService
	tuning      MessengerTuning
	queue       *laneQueue
	logger      *slog.Logger

	mu             sync.Mutex
	timers         map[string]*time.Timer
	byExecution    map[string]map[string]bool // executionID -> messageIDs with live timers
	timeoutHandler primary.TimeoutHandler

	now func() time.Time
}

// NewMessengerService creates a new MessengerService with injected dependencies.
func NewMessengerService(
	messageRepo secondary.MessageRepository,
	bus secondary.MessageBus,
	monitor primary.MonitorService,
	tuning MessengerTuning,
	logger *slog.Logger,
) *MessengerServiceImpl {
	return &MessengerServiceImpl{
		messageRepo: messageRepo,
		bus:         bus,
		monitor:     monitor,
		tuning:      tuning,
		queue:       newLaneQueue(),
		logger:      logger,
		timers:      map[string]*time.Timer{},
		byExecution: map[string]map[string]bool{},
		now:         time.Now,
	}
}

// SetTimeoutHandler registers the consumer of timeout notifications. Set
// once during wiring, before any Send.
func (s *MessengerServiceImpl) SetTimeoutHandler(h primary.TimeoutHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeoutHandler = h
}

// wirePayload is the bus representation of a message.
type wirePayload struct {
	ID            string `json:"id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	ExecutionID   string `json:"execution_id,omitempty"`
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	Type          string `json:"type"`
	Priority      string `json:"priority"`
	Body          string `json:"body"`
	Attempt       int    `json:"attempt"`
}

// Send dispatches a message and returns its ID. Fire-and-forget.
func (s *MessengerServiceImpl) Send(ctx context.Context, req primary.SendRequest) (string, error) {
	if req.Sender == "" || req.Recipient == "" {
		return "", fmt.Errorf("sender and recipient are required")
	}
	if req.Type == "" {
		return "", fmt.Errorf("message type is required")
	}

	now := s.now()
	msg := &models.Message{
		ID:               newID("MSG"),
		CorrelationID:    req.CorrelationID,
		ExecutionID:      req.ExecutionID,
		Sender:           req.Sender,
		Recipient:        req.Recipient,
		Type:             req.Type,
		Priority:         req.Priority,
		Body:             req.Body,
		RequiresAck:      req.RequiresAck,
		AckTimeout:       req.AckTimeout,
		RequiresResponse: req.RequiresResponse,
		ResponseTimeout:  req.ResponseTimeout,
		Status:           models.MessageSent,
		Attempts:         1,
		CreatedAt:        now,
	}
	if msg.Priority == "" {
		msg.Priority = models.PriorityMedium
	}
	if msg.RequiresAck && msg.AckTimeout <= 0 {
		msg.AckTimeout = s.tuning.DefaultAckTimeout
	}
	if msg.RequiresResponse && msg.ResponseTimeout <= 0 {
		msg.ResponseTimeout = s.tuning.DefaultResponseTimeout
	}
	// A broadcast has no single accountable recipient, so handshake flags
	// are dropped.
	if msg.Recipient == "*" {
		msg.RequiresAck = false
		msg.RequiresResponse = false
	}
	// A response implies an acknowledgment first.
	if msg.RequiresResponse {
		msg.RequiresAck = true
		if msg.AckTimeout <= 0 {
			msg.AckTimeout = s.tuning.DefaultAckTimeout
		}
	}
	if msg.RequiresAck {
		expires := now.Add(msg.AckTimeout)
		msg.ExpiresAt = &expires
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}
	if err := s.deliver(ctx, msg); err != nil {
		return "", err
	}
	if msg.RequiresAck {
		s.startAckTimer(msg)
	}

	s.logger.Info("message sent",
		"message_id", msg.ID,
		"recipient", msg.Recipient,
		"type", string(msg.Type),
		"priority", string(msg.Priority))
	return msg.ID, nil
}

// deliver queues the message on its priority lane and drains the queue.
func (s *MessengerServiceImpl) deliver(ctx context.Context, msg *models.Message) error {
	s.queue.Push(msg, s.now())
	return s.drain(ctx)
}

// drain publishes queued messages in strict priority order until the queue
// is empty. A failed publish leaves the message at the head of its lane for
// the next drain.
func (s *MessengerServiceImpl) drain(ctx context.Context) error {
	for {
		qm, ok := s.queue.Pop()
		if !ok {
			return nil
		}
		if err := s.publish(ctx, qm.msg); err != nil {
			s.queue.Requeue(qm)
			return err
		}
	}
}

// PromoteAged lifts queued messages past the aging threshold one lane, then
// retries delivery. Ticked periodically alongside the alert evaluator.
func (s *MessengerServiceImpl) PromoteAged(ctx context.Context) int {
	n := s.queue.PromoteAged(s.now(), s.tuning.AgingThreshold)
	if s.queue.Len() > 0 {
		if err := s.drain(ctx); err != nil {
			s.logger.Error("failed to drain dispatch queue", "error", err)
		}
	}
	return n
}

// publish writes the message to its bus topics and records the attempt.
func (s *MessengerServiceImpl) publish(ctx context.Context, msg *models.Message) error {
	payload, err := json.Marshal(wirePayload{
		ID:            msg.ID,
		CorrelationID: msg.CorrelationID,
		ExecutionID:   msg.ExecutionID,
		Sender:        msg.Sender,
		Recipient:     msg.Recipient,
		Type:          string(msg.Type),
		Priority:      string(msg.Priority),
		Body:          msg.Body,
		Attempt:       msg.Attempts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	topics := []string{
		"instance." + msg.Recipient,
		"lane." + string(msg.Priority),
	}
	if msg.ExecutionID != "" {
		topics = append(topics, "execution."+msg.ExecutionID)
	}
	if msg.Type == models.MessageInform && msg.Recipient == "*" {
		topics = []string{"broadcast"}
	}
	for _, topic := range topics {
		if err := s.bus.Publish(ctx, topic, payload); err != nil {
			return fmt.Errorf("failed to publish to %s: %w", topic, err)
		}
	}

	if err := s.messageRepo.RecordAttempt(ctx, msg.ID, msg.Attempts, s.now(), "delivered"); err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Acknowledge transitions sent -> acknowledged and cancels the ack timer.
// Re-acknowledging an acknowledged message is a no-op: delivery is
// at-least-once and duplicate acks are expected.
func (s *MessengerServiceImpl) Acknowledge(ctx context.Context, messageID string) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	switch msg.Status {
	case models.MessageAcknowledged:
		return nil
	case models.MessageSent:
	default:
		return &models.InvalidMessageTransitionError{MessageID: messageID, From: msg.Status, To: models.MessageAcknowledged}
	}

	s.cancelTimer(messageID)

	now := s.now()
	msg.Status = models.MessageAcknowledged
	msg.AcknowledgedAt = &now
	if msg.RequiresResponse {
		expires := now.Add(msg.ResponseTimeout)
		msg.ExpiresAt = &expires
	} else {
		msg.ExpiresAt = nil
	}
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}

	if msg.RequiresResponse {
		s.startResponseTimer(msg)
	}
	return nil
}

// Respond transitions acknowledged -> responded with a payload.
func (s *MessengerServiceImpl) Respond(ctx context.Context, messageID, payload string) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Status != models.MessageAcknowledged {
		return &models.InvalidMessageTransitionError{MessageID: messageID, From: msg.Status, To: models.MessageResponded}
	}

	s.cancelTimer(messageID)

	now := s.now()
	msg.Status = models.MessageResponded
	msg.Response = payload
	msg.RespondedAt = &now
	msg.ExpiresAt = nil
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// GetMessage retrieves message status and history.
func (s *MessengerServiceImpl) GetMessage(ctx context.Context, messageID string) (*models.Message, error) {
	return s.messageRepo.GetByID(ctx, messageID)
}

// ListMessages lists messages for a recipient or execution.
func (s *MessengerServiceImpl) ListMessages(ctx context.Context, filters primary.MessageFilters) ([]*models.Message, error) {
	msgs, err := s.messageRepo.List(ctx, secondary.MessageFilters{
		ExecutionID: filters.ExecutionID,
		Recipient:   filters.Recipient,
		Status:      filters.Status,
		Limit:       filters.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return msgs, nil
}

// CancelExecution cancels all outstanding timers tied to an execution. The
// messages themselves keep their current status for audit.
func (s *MessengerServiceImpl) CancelExecution(ctx context.Context, executionID string) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.byExecution[executionID]))
	for id := range s.byExecution[executionID] {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.cancelTimer(id)
	}
	return nil
}

// Recover rebuilds timers for in-flight messages after a restart. Messages
// whose deadline already passed fire their timeout immediately.
func (s *MessengerServiceImpl) Recover(ctx context.Context) error {
	for _, status := range []models.MessageStatus{models.MessageSent, models.MessageAcknowledged} {
		msgs, err := s.messageRepo.List(ctx, secondary.MessageFilters{Status: status})
		if err != nil {
			return fmt.Errorf("failed to list in-flight messages: %w", err)
		}
		for _, msg := range msgs {
			switch {
			case msg.Status == models.MessageSent && msg.RequiresAck:
				s.startAckTimer(msg)
			case msg.Status == models.MessageAcknowledged && msg.RequiresResponse:
				s.startResponseTimer(msg)
			}
		}
	}
	return nil
}

// startAckTimer arms the ack deadline for a sent message.
func (s *MessengerServiceImpl) startAckTimer(msg *models.Message) {
	delay := s.timerDelay(msg)
	id := msg.ID
	s.registerTimer(msg, time.AfterFunc(delay, func() {
		s.onAckTimeout(context.Background(), id)
	}))
}

// startResponseTimer arms the response deadline for an acknowledged message.
func (s *MessengerServiceImpl) startResponseTimer(msg *models.Message) {
	delay := s.timerDelay(msg)
	id := msg.ID
	s.registerTimer(msg, time.AfterFunc(delay, func() {
		s.onResponseTimeout(context.Background(), id)
	}))
}

func (s *MessengerServiceImpl) timerDelay(msg *models.Message) time.Duration {
	if msg.ExpiresAt == nil {
		return 0
	}
	return msg.ExpiresAt.Sub(s.now())
}

func (s *MessengerServiceImpl) registerTimer(msg *models.Message, t *time.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.timers[msg.ID]; ok {
		old.Stop()
	}
	s.timers[msg.ID] = t
	if msg.ExecutionID != "" {
		if s.byExecution[msg.ExecutionID] == nil {
			s.byExecution[msg.ExecutionID] = map[string]bool{}
		}
		s.byExecution[msg.ExecutionID][msg.ID] = true
	}
}

func (s *MessengerServiceImpl) cancelTimer(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[messageID]; ok {
		t.Stop()
		delete(s.timers, messageID)
	}
	for execID, ids := range s.byExecution {
		if ids[messageID] {
			delete(ids, messageID)
			if len(ids) == 0 {
				delete(s.byExecution, execID)
			}
		}
	}
}

// onAckTimeout handles a missed ack deadline: the message expires, is
// re-sent while the redelivery budget lasts, then dead-letters.
func (s *MessengerServiceImpl) onAckTimeout(ctx context.Context, messageID string) {
	s.cancelTimer(messageID)

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		s.logger.Error("ack timeout on unknown message", "message_id", messageID, "error", err)
		return
	}
	if msg.Status != models.MessageSent {
		// Acknowledged while the timer was firing; nothing to do.
		return
	}

	// The message expires the moment its ack window closes; a redelivery
	// below re-sends it.
	now := s.now()
	msg.Status = models.MessageExpired
	msg.ExpiresAt = nil
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		s.logger.Error("failed to expire message", "message_id", messageID, "error", err)
		return
	}

	if msg.Attempts <= s.tuning.MaxRedeliveries {
		if s.tuning.AgingThreshold > 0 && now.Sub(msg.CreatedAt) >= s.tuning.AgingThreshold {
			msg.Priority = promote(msg.Priority)
		}
		msg.Status = models.MessageSent
		msg.Attempts++
		// Each redelivery doubles the ack window: timeout << 1, << 2, ...
		expires := now.Add(msg.AckTimeout << (msg.Attempts - 1))
		msg.ExpiresAt = &expires
		if err := s.messageRepo.Update(ctx, msg); err != nil {
			s.logger.Error("failed to update message for redelivery", "message_id", messageID, "error", err)
			return
		}
		if err := s.deliver(ctx, msg); err != nil {
			s.logger.Error("failed to redeliver message", "message_id", messageID, "error", err)
			return
		}
		s.startAckTimer(msg)
		s.logger.Warn("message redelivered",
			"message_id", messageID,
			"attempt", msg.Attempts,
			"priority", string(msg.Priority))
		return
	}

	// Redelivery budget exhausted: dead-letter.
	detail := fmt.Sprintf("message %s to %s unacknowledged after %d attempts", msg.ID, msg.Recipient, msg.Attempts)
	if err := s.monitor.RaiseAlert(ctx, msg.Recipient, msg.ExecutionID, models.AlertDeadLetter, models.SeverityCritical, detail); err != nil {
		s.logger.Error("failed to raise dead-letter alert", "message_id", messageID, "error", err)
	}
	s.notifyTimeout(ctx, msg, primary.TimeoutAck)
}

// onResponseTimeout handles an expired response deadline. There is no
// auto-retry: the sender decides reassignment or escalation.
func (s *MessengerServiceImpl) onResponseTimeout(ctx context.Context, messageID string) {
	s.cancelTimer(messageID)

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		s.logger.Error("response timeout on unknown message", "message_id", messageID, "error", err)
		return
	}
	if msg.Status != models.MessageAcknowledged {
		return
	}

	msg.Status = models.MessageExpired
	if err := s.messageRepo.Update(ctx, msg); err != nil {
		s.logger.Error("failed to expire message", "message_id", messageID, "error", err)
		return
	}
	detail := fmt.Sprintf("message %s to %s acknowledged but unanswered within %s", msg.ID, msg.Recipient, msg.ResponseTimeout)
	if err := s.monitor.RaiseAlert(ctx, msg.Recipient, msg.ExecutionID, models.AlertTaskTimeout, models.SeverityCritical, detail); err != nil {
		s.logger.Error("failed to raise task timeout alert", "message_id", messageID, "error", err)
	}
	s.notifyTimeout(ctx, msg, primary.TimeoutResponse)
}

func (s *MessengerServiceImpl) notifyTimeout(ctx context.Context, msg *models.Message, kind primary.TimeoutKind) {
	s.mu.Lock()
	handler := s.timeoutHandler
	s.mu.Unlock()
	if handler != nil {
		handler.HandleMessageTimeout(ctx, msg, kind)
	}
}

// promote raises a priority one lane.
func promote(p models.MessagePriority) models.MessagePriority {
	switch p {
	case models.PriorityLow:
		return models.PriorityMedium
	case models.PriorityMedium:
		return models.PriorityHigh
	case models.PriorityHigh:
		return models.PriorityCritical
	default:
		return p
	}
}

// Ensure MessengerServiceImpl implements the interface.
var _ primary.MessengerService = (*MessengerServiceImpl)(nil)
