package event

/**
 * @file: event.go
 * @description: in-process event bus
 */

type Event interface {
	// EventName returns the name handlers subscribe to
	EventName() string
}

type EventHandler interface {
	Handle(event Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(event Event) error

func (f HandlerFunc) Handle(event Event) error {
	return f(event)
}
