package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the coordination core. Callers match with errors.Is;
// none of these are ever coerced to a default behavior.
var (
	// ErrStaleSequence marks a duplicate or out-of-order state event.
	ErrStaleSequence = errors.New("stale or duplicate event sequence")

	// ErrStateConflict marks divergent authoritative facts for the same field.
	ErrStateConflict = errors.New("conflicting authoritative state")

	// ErrBudgetExceeded marks a hard spend denial.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInstanceUnhealthy marks an instance unfit for task dispatch.
	ErrInstanceUnhealthy = errors.New("instance unhealthy")

	// ErrNoResponsibleParty marks a RACI lookup with no responsible workers.
	ErrNoResponsibleParty = errors.New("no responsible party")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict marks an optimistic-concurrency failure; the caller
	// retries against the freshest version.
	ErrVersionConflict = errors.New("version conflict")
)

// InvalidTransitionError reports a lifecycle transition outside the allowed
// table. The instance state is left unchanged.
type InvalidTransitionError struct {
	InstanceID string
	From       LifecycleState
	To         LifecycleState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for %s: %s -> %s", e.InstanceID, e.From, e.To)
}

// InvalidMessageTransitionError reports a message status change outside the
// handshake state machine.
type InvalidMessageTransitionError struct {
	MessageID string
	From      MessageStatus
	To        MessageStatus
}

func (e *InvalidMessageTransitionError) Error() string {
	return fmt.Sprintf("invalid message transition for %s: %s -> %s", e.MessageID, e.From, e.To)
}
