package service

import (
	"context"
	"sync"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	EventRepositoryRegistered EventType = "repository_registered"
	EventHandlerBuilt         EventType = "handler_built"
	EventHandlerBuildFailed   EventType = "handler_build_failed"
	EventSchemaRegistered     EventType = "schema_registered"
	EventSchemaMigrated       EventType = "schema_migrated"
	EventContentInserted      EventType = "content_inserted"
	EventContentUpdated       EventType = "content_updated"
	EventContentDeleted       EventType = "content_deleted"
)

// Event represents an event that occurred in the system
type Event struct {
	Type      EventType      `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(t EventType, payload map[string]any) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now().UTC()}
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers. A nil bus drops the event
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}

// Broadcaster receives forwarded events
type Broadcaster interface {
	Broadcast(event interface{})
}

// Forward relays every event to b until ctx is done
func (eb *EventBus) Forward(ctx context.Context, b Broadcaster) error {
	ch := make(chan Event, 256)
	eb.Subscribe(ch)
	defer eb.Unsubscribe(ch)

	for {
		select {
		case event := <-ch:
			b.Broadcast(event)
		case <-ctx.Done():
			return nil
		}
	}
}
