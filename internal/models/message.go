package models

import "time"

// MessageType classifies inter-persona traffic.
type MessageType string

const (
	MessageHandoff      MessageType = "handoff"
	MessageConsultation MessageType = "consultation"
	MessageEscalation   MessageType = "escalation"
	MessageInform       MessageType = "inform"
	MessageAck          MessageType = "ack"
)

// MessagePriority selects the delivery lane.
type MessagePriority string

const (
	PriorityCritical MessagePriority = "critical"
	PriorityHigh     MessagePriority = "high"
	PriorityMedium   MessagePriority = "medium"
	PriorityLow      MessagePriority = "low"
)

// MessageStatus tracks the handshake lifecycle:
// sent -> acknowledged -> responded, with expiry branches at each stage.
type MessageStatus string

const (
	MessageSent         MessageStatus = "sent"
	MessageAcknowledged MessageStatus = "acknowledged"
	MessageResponded    MessageStatus = "responded"
	MessageExpired      MessageStatus = "expired"
	MessageFailed       MessageStatus = "failed"
)

// Message is one inter-persona message. Messages are retained for audit and
// mutated only through the defined status transitions. The message ID is the
// idempotency key for at-least-once delivery.
type Message struct {
	ID               string
	CorrelationID    string
	ExecutionID      string
	Sender           string
	Recipient        string
	Type             MessageType
	Priority         MessagePriority
	Body             string
	RequiresAck      bool
	AckTimeout       time.Duration
	RequiresResponse bool
	ResponseTimeout  time.Duration
	Status           MessageStatus
	Response         string
	Attempts         int
	CreatedAt        time.Time
	AcknowledgedAt   *time.Time
	RespondedAt      *time.Time
	ExpiresAt        *time.Time
}
