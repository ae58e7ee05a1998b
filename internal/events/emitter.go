package events

import (
	"sync"

	"github.com/google/uuid"
)

// Handler receives the event payload. Handlers run synchronously on the
// emitting goroutine, in registration order, with no backpressure.
type Handler func(payload interface{})

type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Emitter is a callback registry keyed by event name. It replaces the
// event-emitter fan-out used for unsolicited notifications.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
}

func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[string][]subscription),
	}
}

func (e *Emitter) On(event string, handler Handler) SubscriptionID {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := SubscriptionID(uuid.NewString())
	e.handlers[event] = append(e.handlers[event], subscription{id: id, handler: handler})
	return id
}

func (e *Emitter) Off(id SubscriptionID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for event, subs := range e.handlers {
		for i, sub := range subs {
			if sub.id == id {
				e.handlers[event] = append(subs[:i], subs[i+1:]...)
				if len(e.handlers[event]) == 0 {
					delete(e.handlers, event)
				}
				return
			}
		}
	}
}

func (e *Emitter) Emit(event string, payload interface{}) {
	e.mu.RLock()
	subs := make([]subscription, len(e.handlers[event]))
	copy(subs, e.handlers[event])
	e.mu.RUnlock()

	for _, sub := range subs {
		sub.handler(payload)
	}
}
