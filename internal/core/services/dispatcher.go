package services

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/lorrc/liveops/internal/core/ports"
)

// Dispatcher is the in-process publish/subscribe registry that fans realtime
// events out to consumers. Handlers for a category run in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	logger   *slog.Logger
}

var _ ports.EventBus = (*Dispatcher)(nil)

type subscription struct {
	d        *Dispatcher
	category string
	handler  ports.EventHandler
}

func (s *subscription) Category() string {
	return s.category
}

func (s *subscription) Unsubscribe() {
	s.d.remove(s)
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]*subscription),
		logger:   logger.With("component", "dispatcher"),
	}
}

// On registers handler for category. Registering the same function twice
// yields two independent registrations.
func (d *Dispatcher) On(category string, handler ports.EventHandler) ports.Subscription {
	sub := &subscription{d: d, category: category, handler: handler}

	d.mu.Lock()
	d.handlers[category] = append(d.handlers[category], sub)
	d.mu.Unlock()

	return sub
}

// Off removes a registration returned by On. Unknown or foreign
// registrations are ignored.
func (d *Dispatcher) Off(sub ports.Subscription) {
	s, ok := sub.(*subscription)
	if !ok || s.d != d {
		return
	}
	d.remove(s)
}

func (d *Dispatcher) remove(sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.handlers[sub.category]
	for i, s := range subs {
		if s == sub {
			next := make([]*subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, sub.category)
			} else {
				d.handlers[sub.category] = next
			}
			return
		}
	}
}

// Emit delivers data to every handler registered for category. Handlers run
// outside the lock so they may register or remove handlers themselves.
func (d *Dispatcher) Emit(category string, data json.RawMessage) {
	d.mu.RLock()
	subs := d.handlers[category]
	d.mu.RUnlock()

	for _, s := range subs {
		d.invoke(s, data)
	}
}

// HandlerCount returns the number of handlers registered for category.
func (d *Dispatcher) HandlerCount(category string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[category])
}

func (d *Dispatcher) invoke(s *subscription, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				"category", s.category,
				"panic", r,
			)
		}
	}()
	s.handler(data)
}
