// Package eventbus provides the in-process pub/sub bus a form uses to
// announce state changes. Dispatch is synchronous: handlers run on the
// publisher's goroutine, in subscription order, before Publish returns.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/matthewbaird/eventform/internal/event"
)

// Handler processes an event. Returned errors are logged and never stop
// dispatch to the remaining handlers.
type Handler interface {
	HandleEvent(ctx context.Context, evt event.Event) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt event.Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt event.Event) error {
	return f(ctx, evt)
}

// Filter restricts which events reach a subscriber. Empty Kinds matches
// every kind; empty Key matches every field.
type Filter struct {
	Kinds []event.Kind
	Key   string
}

// Matches reports whether evt passes the filter.
func (f Filter) Matches(evt event.Event) bool {
	if f.Key != "" && evt.FieldKey() != f.Key {
		return false
	}
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == evt.Kind {
			return true
		}
	}
	return false
}

// Bus is a synchronous in-process event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers []*subscription
	nextID      uint64
	logger      zerolog.Logger
}

type subscription struct {
	id      uint64
	name    string
	filter  Filter
	handler Handler
}

// New creates an empty Bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger.With().Str("component", "eventbus").Logger()}
}

// Subscribe registers a named handler for every event.
func (b *Bus) Subscribe(name string, h Handler) (unsubscribe func()) {
	return b.SubscribeTo(name, Filter{}, h)
}

// SubscribeTo registers a named handler for the events that pass f.
// The returned function removes the subscription; it is safe to call twice.
func (b *Bus) SubscribeTo(name string, f Filter, h Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, name: name, filter: f, handler: h}
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub.id) })
	}
}

// OnField is shorthand for subscribing to changes of a single field.
func (b *Bus) OnField(name, key string, h Handler) (unsubscribe func()) {
	return b.SubscribeTo(name, Filter{Kinds: []event.Kind{event.KindFieldChanged}, Key: key}, h)
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subscribers {
		if s.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers evt to every matching subscriber in subscription order.
// Subscriptions added or removed by a handler take effect from the next Publish.
func (b *Bus) Publish(ctx context.Context, evt event.Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.filter.Matches(evt) {
			continue
		}
		if err := b.dispatch(ctx, s, evt); err != nil {
			b.logger.Error().Err(err).
				Str("handler", s.name).
				Str("kind", string(evt.Kind)).
				Str("field", evt.FieldKey()).
				Msg("handler failed")
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, s *subscription, evt event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.handler.HandleEvent(ctx, evt)
}
