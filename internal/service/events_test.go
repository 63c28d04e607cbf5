package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusPublish(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(ch)

	bus.Publish(NewEvent(EventSchemaRegistered, map[string]any{"name": "note"}))

	select {
	case ev := <-ch:
		assert.Equal(t, EventSchemaRegistered, ev.Type)
		assert.Equal(t, "note", ev.Payload["name"])
		assert.False(t, ev.Timestamp.IsZero())
	default:
		t.Fatal("expected event")
	}
}

func TestEventBusSkipsSlowSubscriber(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event) // unbuffered, nobody reading
	bus.Subscribe(ch)

	done := make(chan struct{})
	go func() {
		bus.Publish(NewEvent(EventHandlerBuilt, nil))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	ch := make(chan Event, 1)
	bus.Subscribe(ch)
	bus.Unsubscribe(ch)

	bus.Publish(NewEvent(EventHandlerBuilt, nil))
	assert.Empty(t, ch)
}

func TestNilEventBus(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Publish(NewEvent(EventHandlerBuilt, nil)) })
}

type recorder struct {
	mu     sync.Mutex
	events []interface{}
}

func (r *recorder) Broadcast(event interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestEventBusForward(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- bus.Forward(ctx, rec) }()

	require.Eventually(t, func() bool {
		bus.Publish(NewEvent(EventContentInserted, nil))
		return rec.len() > 0
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
