// Package bus is the in-process event channel tying independent gateway
// components together: the authorization interceptor asks for a re-login
// prompt, cart mutations ask for a badge refresh, and the session store
// announces changes, all without direct references between them.
package bus

import (
	"context"
	"log/slog"
)

// EventType names a cross-component signal.
type EventType string

const (
	// EventAuthPrompt asks the browser context's tabs to open the
	// authentication dialog.
	EventAuthPrompt EventType = "auth_prompt"
	// EventBadgeRefresh asks the cart badge synchronizer to recompute.
	EventBadgeRefresh EventType = "badge_refresh"
	// EventSessionChanged announces a session store mutation.
	EventSessionChanged EventType = "session_changed"
)

// Event is a signal scoped to one browser context.
type Event struct {
	Type      EventType
	ContextID string
	Payload   any
}

// Handler consumes events of a subscribed type.
type Handler func(Event)

type subscription struct {
	eventType EventType
	handler   Handler
}

// Bus dispatches events to subscribers from a single goroutine, so
// handlers observe events in publication order.
type Bus struct {
	publish   chan Event
	subscribe chan subscription
	handlers  map[EventType][]Handler
}

// New creates a Bus. Run must be started before events flow.
func New() *Bus {
	return &Bus{
		publish:   make(chan Event, 256),
		subscribe: make(chan subscription),
		handlers:  make(map[EventType][]Handler),
	}
}

// Run starts the dispatch loop and blocks until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("event bus shutting down")
			return ctx.Err()

		case sub := <-b.subscribe:
			b.handlers[sub.eventType] = append(b.handlers[sub.eventType], sub.handler)

		case event := <-b.publish:
			for _, handler := range b.handlers[event.Type] {
				handler(event)
			}
		}
	}
}

// Subscribe registers a handler for one event type. Blocks until the
// dispatch loop picks the registration up.
func (b *Bus) Subscribe(t EventType, h Handler) {
	b.subscribe <- subscription{eventType: t, handler: h}
}

// Publish queues an event for dispatch. Drops the event when the queue is
// full rather than blocking a request path.
func (b *Bus) Publish(event Event) {
	select {
	case b.publish <- event:
	default:
		slog.Warn("event bus queue full, dropping event",
			slog.String("type", string(event.Type)),
			slog.String("context_id", event.ContextID))
	}
}
