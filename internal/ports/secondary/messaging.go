package secondary

import (
	"context"
	"time"

	"github.com/example/coord/internal/models"
)

// MessageRepository persists messages for the handshake protocol. Messages
// are retained for audit; status moves only through defined transitions.
type MessageRepository interface {
	// Create persists a new message.
	Create(ctx context.Context, msg *models.Message) error

	// GetByID retrieves a message by its ID.
	GetByID(ctx context.Context, id string) (*models.Message, error)

	// Update writes message status, response, attempts and timestamps.
	Update(ctx context.Context, msg *models.Message) error

	// List retrieves messages matching the filters.
	List(ctx context.Context, filters MessageFilters) ([]*models.Message, error)

	// RecordAttempt appends one delivery attempt to the audit trail.
	RecordAttempt(ctx context.Context, messageID string, attempt int, at time.Time, outcome string) error
}

// MessageFilters contains filter options for querying messages.
type MessageFilters struct {
	ExecutionID string
	Recipient   string
	Status      models.MessageStatus
	Limit       int
}

// MessageBus is the transport abstraction for delivery. Topics follow the
// convention instance.<id>, execution.<id>, lane.<priority>, broadcast; the
// transport (in-memory, networked queue) is swappable behind this port.
type MessageBus interface {
	// Publish delivers a payload to all current subscribers of a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic and returns an unsubscribe
	// function. Handlers must tolerate at-least-once delivery.
	Subscribe(topic string, handler func(topic string, payload []byte)) (unsubscribe func())
}

// SpendLedger is the append-only audit of charges.
type SpendLedger interface {
	// Append records one charge attempt (allowed or denied).
	Append(ctx context.Context, entry *SpendEntry) error

	// List retrieves entries for an instance, newest first, optionally
	// filtered by category.
	List(ctx context.Context, instanceID, category string, since time.Time) ([]*SpendEntry, error)
}

// SpendEntry is one row of the spend audit trail.
type SpendEntry struct {
	ID         string
	InstanceID string
	Amount     float64
	Category   string
	Allowed    bool
	ChargedAt  time.Time
}
