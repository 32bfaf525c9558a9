package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/enactgo/enact/internal/log"
)

// Handler consumes a single event.
type Handler func(ctx context.Context, event *Event) error

// Dispatcher fans events out to in-process subscribers, synchronously and in
// subscription order. Handler errors are logged and swallowed.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Type][]Handler
	all      []Handler
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		logger:   logger,
		handlers: map[Type][]Handler{},
	}
}

// Subscribe registers a handler for a single event type.
func (d *Dispatcher) Subscribe(t Type, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[t] = append(d.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.all = append(d.all, h)
}

func (d *Dispatcher) Publish(ctx context.Context, event *Event) error {
	d.mu.RLock()
	handlers := make([]Handler, 0, len(d.all)+len(d.handlers[event.Type]))
	handlers = append(handlers, d.all...)
	handlers = append(handlers, d.handlers[event.Type]...)
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			d.logger.Warn(
				"Event handler failed",
				log.EventTypeKey, string(event.Type),
				log.ActivityIDKey, event.ActivityID,
				"error", err,
			)
		}
	}

	return nil
}
