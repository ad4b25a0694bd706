package events

import (
	"context"
	"errors"
	"sync"
)

// EventHandler consumes one published audit event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans auth audit events out to subscribers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// memoryDispatcher delivers synchronously, in subscription order, within the
// publishing request. Audit sinks must therefore stay cheap; anything slow
// belongs behind its own queue.
type memoryDispatcher struct {
	mu   sync.RWMutex
	subs map[EventType][]EventHandler
}

// NewInMemoryDispatcher builds an empty dispatcher.
func NewInMemoryDispatcher() Dispatcher {
	return &memoryDispatcher{subs: make(map[EventType][]EventHandler)}
}

// Publish invokes every subscriber for the event's type. A failing handler
// does not stop delivery to the rest; the joined errors come back so the
// caller can log them.
func (d *memoryDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler(nil), d.subs[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers a handler for one event type.
func (d *memoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[eventType] = append(d.subs[eventType], handler)
}
