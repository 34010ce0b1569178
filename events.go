package access

import (
	"context"
	"sync"
)

// Event is published on the EventBus.
type Event interface {
	EventName() string
}

// MembershipAction describes how a principal's role groups changed.
type MembershipAction string

const (
	MembershipAdded   MembershipAction = "added"
	MembershipRemoved MembershipAction = "removed"
	MembershipCleared MembershipAction = "cleared"
	MembershipCreated MembershipAction = "created"
)

// MembershipChanged is emitted after a principal's role groups change.
type MembershipChanged struct {
	PrincipalID string
	Action      MembershipAction
}

func (MembershipChanged) EventName() string { return "principal.membership.changed" }

// RoleDefinitionChanged is emitted after a role's staff flag is edited.
type RoleDefinitionChanged struct {
	Role    string
	IsStaff bool
}

func (RoleDefinitionChanged) EventName() string { return "role.definition.changed" }

// EventHandler reacts to an event. Handlers must not block for long when the
// bus is synchronous.
type EventHandler interface {
	HandleEvent(ctx context.Context, event Event)
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event Event)

// HandleEvent implements EventHandler.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event Event) {
	if f != nil {
		f(ctx, event)
	}
}

// EventPublisher is the publishing half of the bus.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) {}

func normalizePublisher(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// EventBus fans events out to subscribers. Without a queue, Publish runs
// the handlers inline. With a queue, Start launches a worker that drains it
// and Publish blocks while the queue is full.
type EventBus struct {
	mu       sync.RWMutex
	handlers []EventHandler
	state    sync.RWMutex
	queue    chan queuedEvent
	wg       sync.WaitGroup
	started  bool
	closed   bool
	logger   Logger
}

// EventBusOption customizes an EventBus.
type EventBusOption func(*EventBus)

// WithQueue makes the bus asynchronous with a queue of the given size.
func WithQueue(size int) EventBusOption {
	return func(b *EventBus) {
		if size > 0 {
			b.queue = make(chan queuedEvent, size)
		}
	}
}

// WithEventBusLogger sets the logger.
func WithEventBusLogger(logger Logger) EventBusOption {
	return func(b *EventBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func NewEventBus(opts ...EventBusOption) *EventBus {
	_, logger := ResolveLogger("access.events", nil, nil)
	b := &EventBus{logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe adds a handler.
func (b *EventBus) Subscribe(h EventHandler) {
	if h == nil {
		return
	}
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// Publish delivers event to every handler. Events published after Close are
// dropped.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}

	b.state.RLock()
	if b.closed {
		b.state.RUnlock()
		b.logger.Warn("event dropped, bus closed", "event", event.EventName())
		return
	}

	if b.queue == nil || !b.started {
		b.state.RUnlock()
		b.dispatch(ctx, event)
		return
	}

	// the read lock keeps Close from closing the queue mid-send
	defer b.state.RUnlock()
	select {
	case b.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
	case <-ctx.Done():
		b.logger.Warn("event dropped, context done", "event", event.EventName(), "error", ctx.Err())
	}
}

func (b *EventBus) dispatch(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h.HandleEvent(ctx, event)
	}
}

// Start launches the queue worker. It is a no-op for synchronous buses.
func (b *EventBus) Start() {
	b.state.Lock()
	defer b.state.Unlock()

	if b.queue == nil || b.started || b.closed {
		return
	}
	b.started = true

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for item := range b.queue {
			b.dispatch(item.ctx, item.event)
		}
	}()
}

// Close stops accepting events and waits for queued ones to be handled.
func (b *EventBus) Close() {
	b.state.Lock()
	if b.closed {
		b.state.Unlock()
		return
	}
	b.closed = true
	started := b.started
	b.state.Unlock()

	if b.queue != nil && started {
		close(b.queue)
		b.wg.Wait()
	}
}
