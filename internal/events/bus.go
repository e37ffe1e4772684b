// Package events carries station activity to observers that must not slow
// the loop down. Handlers run on the dispatcher's goroutines.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers of its type.
// Unknown event types are dropped.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case ModeChangedEvent:
		event.Publish(b.dispatcher, e)
	case FaultChangedEvent:
		event.Publish(b.dispatcher, e)
	case ButtonPressedEvent:
		event.Publish(b.dispatcher, e)
	case ClimateSampledEvent:
		event.Publish(b.dispatcher, e)
	case JournalWrittenEvent:
		event.Publish(b.dispatcher, e)
	case CommandReceivedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler for the event type it accepts and returns an
// unsubscribe function. Handlers for unknown types are ignored.
//
//	unsub := bus.Subscribe(func(e ModeChangedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(ModeChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FaultChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ButtonPressedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ClimateSampledEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(JournalWrittenEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CommandReceivedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
