// Package relay implements an in-process event relay: named events fan out
// synchronously to listeners in registration order.
package relay

import (
	"fmt"
	"sync"

	"github.com/colivhub/colivrt/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Handler receives the payload of an emitted event.
type Handler func(data any)

// ListenerID identifies a single registration. Funcs are not comparable in Go,
// so removal is done by the ID returned from On.
type ListenerID uint64

type listener struct {
	id      ListenerID
	handler Handler
}

// Relay is safe for concurrent use. A zero Relay is not usable, use New.
type Relay struct {
	mu        sync.RWMutex
	nextID    ListenerID
	listeners map[string][]listener
	metrics   *metrics.Registry
}

type Option func(*Relay)

// WithMetrics counts relayed events and recovered listener panics.
func WithMetrics(m *metrics.Registry) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func New(opts ...Option) *Relay {
	r := &Relay{
		listeners: make(map[string][]listener),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// On appends handler to the listeners of event. Registering the same handler
// twice results in two independent registrations.
func (r *Relay) On(event string, handler Handler) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.listeners[event] = append(r.listeners[event], listener{id: id, handler: handler})
	return id
}

// Off removes a single registration. Unknown event or id is a no-op.
func (r *Relay) Off(event string, id ListenerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.listeners[event]
	for i, l := range current {
		if l.id != id {
			continue
		}
		updated := make([]listener, 0, len(current)-1)
		updated = append(updated, current[:i]...)
		updated = append(updated, current[i+1:]...)
		if len(updated) == 0 {
			delete(r.listeners, event)
		} else {
			r.listeners[event] = updated
		}
		return
	}
}

// Emit calls every listener of event in registration order. Listeners added
// or removed while Emit runs do not affect the current dispatch. A panicking
// listener is logged and skipped.
func (r *Relay) Emit(event string, data any) {
	r.mu.RLock()
	snapshot := r.listeners[event]
	r.mu.RUnlock()
	if len(snapshot) == 0 {
		return
	}
	r.metrics.IncRelayed(event)
	for _, l := range snapshot {
		r.call(event, l, data)
	}
}

// Len returns the number of listeners registered for event.
func (r *Relay) Len(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners[event])
}

func (r *Relay) call(event string, l listener, data any) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.IncListenerPanic(event)
			log.Error().Err(fmt.Errorf("%v", rec)).Str("event", event).Uint64("listener", uint64(l.id)).Msg("listener panicked")
		}
	}()
	l.handler(data)
}
