package platform

import (
	"context"
	"sync"
	"sync/atomic"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// DefaultEventHistorySize is the ring buffer capacity used when a Bus is
// constructed with a non-positive capacity.
const DefaultEventHistorySize = 256

// EventHandler handles one event delivered by the bus. Handlers for the
// same emit run concurrently; a handler's error or panic is logged and
// never suppresses delivery to other handlers.
type EventHandler func(ctx context.Context, event cloudevents.Event) error

// Subscription is the handle returned by On, Once and OnAll. Cancelling is
// idempotent; a cancelled subscription receives no further events.
type Subscription struct {
	id        string
	eventType string // empty for subscribe-all
	handler   EventHandler
	bus       *Bus
	once      bool
	fired     atomic.Bool
	cancelled atomic.Bool
}

// ID returns the unique identifier of the subscription.
func (s *Subscription) ID() string { return s.id }

// EventType returns the subscribed event type, or the empty string for a
// subscribe-all subscription.
func (s *Subscription) EventType() string { return s.eventType }

// Cancel removes the subscription from the bus. Safe to call more than
// once.
func (s *Subscription) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.bus.remove(s)
	}
}

// HistoryFilter narrows a History query. Zero values match everything;
// Limit <= 0 means no limit beyond the buffer capacity.
type HistoryFilter struct {
	Type   string
	Source string
	Limit  int
}

// Bus is a typed publish/subscribe channel with a bounded event history.
// It is the only supported channel for cross-module notifications that
// must not create a direct dependency between the modules involved.
//
// The history is append-only except for eviction of the oldest entry once
// the capacity bound is reached. All methods are safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	logger   Logger
	capacity int
	history  []cloudevents.Event
	byType   map[string]map[string]*Subscription
	all      map[string]*Subscription
	closed   bool
}

// NewBus creates a bus whose history holds at most capacity events.
func NewBus(capacity int, logger Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultEventHistorySize
	}
	return &Bus{
		logger:   logger,
		capacity: capacity,
		byType:   make(map[string]map[string]*Subscription),
		all:      make(map[string]*Subscription),
	}
}

// On subscribes handler to events of the given type.
func (b *Bus) On(eventType string, handler EventHandler) *Subscription {
	return b.subscribe(eventType, handler, false)
}

// Once subscribes handler to events of the given type and deregisters the
// subscription after the first delivery, so the handler observes exactly
// one matching event.
func (b *Bus) Once(eventType string, handler EventHandler) *Subscription {
	return b.subscribe(eventType, handler, true)
}

// OnAll subscribes handler to every event type. This is the explicit
// subscribe-to-everything API; there is no wildcard event type.
func (b *Bus) OnAll(handler EventHandler) *Subscription {
	return b.subscribe("", handler, false)
}

// Off cancels the subscription. Equivalent to sub.Cancel and likewise
// idempotent; a nil subscription is a no-op.
func (b *Bus) Off(sub *Subscription) {
	if sub != nil {
		sub.Cancel()
	}
}

func (b *Bus) subscribe(eventType string, handler EventHandler, once bool) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
		bus:       b,
		once:      once,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.cancelled.Store(true)
		return sub
	}
	if eventType == "" {
		b.all[sub.id] = sub
		return sub
	}
	subs, ok := b.byType[eventType]
	if !ok {
		subs = make(map[string]*Subscription)
		b.byType[eventType] = subs
	}
	subs[sub.id] = sub
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.eventType == "" {
		delete(b.all, sub.id)
		return
	}
	if subs, ok := b.byType[sub.eventType]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.byType, sub.eventType)
		}
	}
}

// Emit appends the event to the bounded history, evicting the oldest entry
// past capacity, then delivers it to every matching handler concurrently.
// Emit returns once all handlers have run; it never fails, and a failing
// handler never affects the others.
func (b *Bus) Emit(ctx context.Context, event cloudevents.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.history = append(b.history, event)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}

	targets := make([]*Subscription, 0, len(b.all)+len(b.byType[event.Type()]))
	for _, sub := range b.byType[event.Type()] {
		targets = append(targets, sub)
	}
	for _, sub := range b.all {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, sub := range targets {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			b.deliver(ctx, sub, event)
		}(sub)
	}
	wg.Wait()
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, event cloudevents.Event) {
	if sub.cancelled.Load() {
		return
	}
	if sub.once {
		if !sub.fired.CompareAndSwap(false, true) {
			return
		}
		defer sub.Cancel()
	}
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Event handler panicked",
				"eventType", event.Type(), "subscription", sub.id, "panic", rec)
		}
	}()
	if err := sub.handler(ctx, event); err != nil {
		b.logger.Error("Event handler failed",
			"eventType", event.Type(), "subscription", sub.id, "error", err)
	}
}

// History returns the most recent events matching filter, newest first.
func (b *Bus) History(filter HistoryFilter) []cloudevents.Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []cloudevents.Event
	for i := len(b.history) - 1; i >= 0; i-- {
		ev := b.history[i]
		if filter.Type != "" && ev.Type() != filter.Type {
			continue
		}
		if filter.Source != "" && ev.Source() != filter.Source {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// SubscriberCount reports how many subscriptions exist for the given event
// type, not counting subscribe-all subscriptions.
func (b *Bus) SubscriberCount(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byType[eventType])
}

// Close cancels every subscription and drops all further emits. History
// remains readable after close.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for _, subs := range b.byType {
		for _, sub := range subs {
			sub.cancelled.Store(true)
		}
	}
	for _, sub := range b.all {
		sub.cancelled.Store(true)
	}
	b.byType = make(map[string]map[string]*Subscription)
	b.all = make(map[string]*Subscription)
}
