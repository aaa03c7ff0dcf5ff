// Package bus contains message bus implementations behind the
// secondary.MessageBus port. Topics: instance.<id>, execution.<id>,
// lane.<priority>, broadcast.
package bus

import (
	"context"
	"sync"

	"github.com/example/coord/internal/ports/secondary"
)

// Memory is an in-process pub/sub transport. Handlers run synchronously on
// the publisher's goroutine; delivery inside one process is exactly-once but
// consumers still key on message IDs since the protocol is at-least-once.
type Memory struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]func(topic string, payload []byte)
}

// NewMemory creates an empty in-memory bus.
func NewMemory() *Memory {
	return &Memory{subs: map[string]map[int]func(topic string, payload []byte){}}
}

// Publish delivers a payload to all current subscribers of a topic.
func (b *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	handlers := make([]func(string, []byte), 0, len(b.subs[topic]))
	for _, h := range b.subs[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(topic, payload)
	}
	return nil
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. Unsubscribe is idempotent.
func (b *Memory) Subscribe(topic string, handler func(topic string, payload []byte)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[topic] == nil {
		b.subs[topic] = map[int]func(string, []byte){}
	}
	b.subs[topic][id] = handler
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if handlers, ok := b.subs[topic]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, topic)
			}
		}
	}
}

// Ensure Memory implements the interface.
var _ secondary.MessageBus = (*Memory)(nil)
