package event

import (
	"errors"
	"sync"

	"github.com/go-arcade/guild/pkg/safe"
)

// EventBus dispatches events synchronously to the handlers registered for their name.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[string][]EventHandler),
	}
}

func (eb *EventBus) RegisterHandler(eventName string, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventName] = append(eb.handlers[eventName], handler)
}

// Publish runs every handler for the event and joins their errors.
// A failing or panicking handler does not stop the others.
func (eb *EventBus) Publish(event Event) error {
	eb.mu.RLock()
	handlers := append([]EventHandler(nil), eb.handlers[event.EventName()]...)
	eb.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := safe.Call(func() error { return handler.Handle(event) }); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
