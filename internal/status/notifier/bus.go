// Package notifier turns persisted status changes into domain events and
// real-time broadcasts.
package notifier

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"statusable/internal/status/statusful"
	"statusable/pkg/platform/tx"
)

// Handler processes one dispatched event.
type Handler func(ctx context.Context, event statusful.Event) error

// Bus is an in-process, synchronous event bus keyed by event name.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[string][]Handler), logger: logger}
}

// Subscribe adds h for events named name. Handlers run in subscription order.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Dispatch runs every handler for the event now. All handlers run even when
// one fails; the failures are joined.
func (b *Bus) Dispatch(ctx context.Context, event statusful.Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event.EventName()]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DispatchTimed dispatches event after ctx's unit of work commits, or now
// when the event implements statusful.AfterCommitter returning false.
// Failures of a deferred dispatch are reported to onError.
func (b *Bus) DispatchTimed(ctx context.Context, event statusful.Event, onError func(ctx context.Context, err error)) error {
	if ac, ok := event.(statusful.AfterCommitter); ok && !ac.AfterCommit() {
		return b.Dispatch(ctx, event)
	}
	tx.AfterCommit(ctx, func(ctx context.Context) {
		if err := b.Dispatch(ctx, event); err != nil && onError != nil {
			onError(ctx, err)
		}
	})
	return nil
}
