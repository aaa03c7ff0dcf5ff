package primary

import (
	"context"
	"time"

	"github.com/example/coord/internal/models"
)

// MessengerService implements the inter-persona handshake protocol: priority
// delivery, acknowledgment and response tracking, expiry and redelivery.
type MessengerService interface {
	// Send dispatches a message and returns its ID. Fire-and-forget: the
	// caller does not wait for acknowledgment. Delivery is at-least-once;
	// consumers treat the message ID as an idempotency key.
	Send(ctx context.Context, req SendRequest) (string, error)

	// Acknowledge transitions sent -> acknowledged and cancels the ack timer.
	Acknowledge(ctx context.Context, messageID string) error

	// Respond transitions acknowledged -> responded with a payload.
	Respond(ctx context.Context, messageID, payload string) error

	// GetMessage retrieves message status and history.
	GetMessage(ctx context.Context, messageID string) (*models.Message, error)

	// ListMessages lists messages for a recipient or execution.
	ListMessages(ctx context.Context, filters MessageFilters) ([]*models.Message, error)

	// CancelExecution cancels all outstanding timers tied to an execution.
	CancelExecution(ctx context.Context, executionID string) error
}

// SendRequest carries a message at the boundary.
type SendRequest struct {
	CorrelationID    string
	ExecutionID      string
	Sender           string
	Recipient        string
	Type             models.MessageType
	Priority         models.MessagePriority
	Body             string
	RequiresAck      bool
	AckTimeout       time.Duration
	RequiresResponse bool
	ResponseTimeout  time.Duration
}

// MessageFilters contains filter options for listing messages.
type MessageFilters struct {
	ExecutionID string
	Recipient   string
	Status      models.MessageStatus
	Limit       int
}

// TimeoutKind distinguishes the two recoverable messenger timeouts.
type TimeoutKind string

const (
	TimeoutAck      TimeoutKind = "ack"
	TimeoutResponse TimeoutKind = "response"
)

// TimeoutHandler receives messenger timeout notifications. The reconciler
// registers itself; response timeouts surface as task_timeout and are not
// auto-retried.
type TimeoutHandler interface {
	HandleMessageTimeout(ctx context.Context, msg *models.Message, kind TimeoutKind)
}
