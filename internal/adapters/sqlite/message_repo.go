package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/coord/internal/models"
	"github.com/example/coord/internal/ports/secondary"
)

// MessageRepository implements secondary.MessageRepository with SQLite.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new SQLite message repository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create persists a new message.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) error {
	var expiresAt sql.NullTime
	if msg.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *msg.ExpiresAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages
			(id, correlation_id, execution_id, sender, recipient, type, priority, body,
			 requires_ack, ack_timeout_ms, requires_response, response_timeout_ms,
			 status, response, attempts, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.CorrelationID, msg.ExecutionID, msg.Sender, msg.Recipient,
		string(msg.Type), string(msg.Priority), msg.Body,
		boolToInt(msg.RequiresAck), msg.AckTimeout.Milliseconds(),
		boolToInt(msg.RequiresResponse), msg.ResponseTimeout.Milliseconds(),
		string(msg.Status), msg.Response, msg.Attempts, msg.CreatedAt, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

const messageColumns = `id, correlation_id, execution_id, sender, recipient, type,
	priority, body, requires_ack, ack_timeout_ms, requires_response,
	response_timeout_ms, status, response, attempts, created_at,
	acknowledged_at, responded_at, expires_at`

func scanMessage(row interface{ Scan(...any) error }) (*models.Message, error) {
	var (
		msg            models.Message
		msgType        string
		priority       string
		status         string
		requiresAck    int
		requiresResp   int
		ackTimeoutMs   int64
		respTimeoutMs  int64
		acknowledgedAt sql.NullTime
		respondedAt    sql.NullTime
		expiresAt      sql.NullTime
	)
	err := row.Scan(&msg.ID, &msg.CorrelationID, &msg.ExecutionID, &msg.Sender,
		&msg.Recipient, &msgType, &priority, &msg.Body,
		&requiresAck, &ackTimeoutMs, &requiresResp, &respTimeoutMs,
		&status, &msg.Response, &msg.Attempts, &msg.CreatedAt,
		&acknowledgedAt, &respondedAt, &expiresAt)
	if err != nil {
		return nil, err
	}
	msg.Type = models.MessageType(msgType)
	msg.Priority = models.MessagePriority(priority)
	msg.Status = models.MessageStatus(status)
	msg.RequiresAck = requiresAck == 1
	msg.RequiresResponse = requiresResp == 1
	msg.AckTimeout = time.Duration(ackTimeoutMs) * time.Millisecond
	msg.ResponseTimeout = time.Duration(respTimeoutMs) * time.Millisecond
	if acknowledgedAt.Valid {
		msg.AcknowledgedAt = &acknowledgedAt.Time
	}
	if respondedAt.Valid {
		msg.RespondedAt = &respondedAt.Time
	}
	if expiresAt.Valid {
		msg.ExpiresAt = &expiresAt.Time
	}
	return &msg, nil
}

// GetByID retrieves a message by its ID.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// Update writes message status, response, attempts and timestamps.
func (r *MessageRepository) Update(ctx context.Context, msg *models.Message) error {
	var acknowledgedAt, respondedAt, expiresAt sql.NullTime
	if msg.AcknowledgedAt != nil {
		acknowledgedAt = sql.NullTime{Time: *msg.AcknowledgedAt, Valid: true}
	}
	if msg.RespondedAt != nil {
		respondedAt = sql.NullTime{Time: *msg.RespondedAt, Valid: true}
	}
	if msg.ExpiresAt != nil {
		expiresAt = sql.NullTime{Time: *msg.ExpiresAt, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE messages SET
			status = ?, response = ?, attempts = ?,
			acknowledged_at = ?, responded_at = ?, expires_at = ?
		 WHERE id = ?`,
		string(msg.Status), msg.Response, msg.Attempts,
		acknowledgedAt, respondedAt, expiresAt, msg.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", msg.ID, models.ErrNotFound)
	}
	return nil
}

// List retrieves messages matching the filters.
func (r *MessageRepository) List(ctx context.Context, filters secondary.MessageFilters) ([]*models.Message, error) {
	query := "SELECT " + messageColumns + " FROM messages WHERE 1=1"
	args := []any{}
	if filters.ExecutionID != "" {
		query += " AND execution_id = ?"
		args = append(args, filters.ExecutionID)
	}
	if filters.Recipient != "" {
		query += " AND recipient = ?"
		args = append(args, filters.Recipient)
	}
	if filters.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filters.Status))
	}
	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// RecordAttempt appends one delivery attempt to the audit trail.
func (r *MessageRepository) RecordAttempt(ctx context.Context, messageID string, attempt int, at time.Time, outcome string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO message_attempts (message_id, attempt, attempted_at, outcome) VALUES (?, ?, ?, ?)",
		messageID, attempt, at, outcome,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure MessageRepository implements the interface.
var _ secondary.MessageRepository = (*MessageRepository)(nil)
