package notifier

import (
	"context"
	"log/slog"
	"time"

	"statusable/internal/status/metrics"
	"statusable/internal/status/registry"
	"statusable/internal/status/statusful"
	"statusable/pkg/platform/tx"
)

// Notifier implements statusful.Notifier. On a change it schedules the
// mapped broadcast, if any, for after commit, then dispatches StatusChanged.
type Notifier struct {
	registry    *registry.Registry
	bus         *Bus
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

func New(reg *registry.Registry, bus *Bus, broadcaster Broadcaster, opts ...Option) *Notifier {
	n := &Notifier{
		registry:    reg,
		bus:         bus,
		broadcaster: broadcaster,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Notifier) StatusChanged(ctx context.Context, entity statusful.Statusful) error {
	scope := n.registry.ScopeFrom(ctx)
	identifier, _, err := scope.IdentifierOf(ctx, entity.EntityType(), entity.StatusID())
	if err != nil {
		return err
	}

	n.scheduleBroadcast(ctx, scope, entity, identifier)

	return n.bus.Dispatch(ctx, &StatusChanged{
		Entity:     entity,
		StatusID:   entity.StatusID(),
		Identifier: identifier,
	})
}

func (n *Notifier) scheduleBroadcast(ctx context.Context, scope *registry.Scope, entity statusful.Statusful, identifier string) {
	b, ok := entity.(statusful.Broadcastable)
	if !ok || identifier == "" || n.broadcaster == nil {
		return
	}
	event, ok := b.StatusBroadcasts()[identifier]
	if !ok {
		return
	}
	msg, err := NewBroadcast(entity, event, Status{
		ID:         entity.StatusID(),
		Identifier: identifier,
		Name:       scope.StatusName(ctx, entity.StatusID()),
	}, n.now())
	if err != nil {
		n.metrics.IncrementNotificationFailures("broadcast")
		n.logger.ErrorContext(ctx, "status broadcast not built",
			"entity_type", entity.EntityType(),
			"event", event,
			"error", err,
		)
		return
	}
	tx.AfterCommit(ctx, func(ctx context.Context) {
		if err := n.broadcaster.Broadcast(ctx, msg); err != nil {
			n.metrics.IncrementNotificationFailures("broadcast")
			n.logger.ErrorContext(ctx, "status broadcast failed",
				"channel", msg.Channel,
				"event", msg.Event,
				"error", err,
			)
		}
	})
}
