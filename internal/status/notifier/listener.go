package notifier

import (
	"context"
	"log/slog"

	"statusable/internal/status/metrics"
	"statusable/internal/status/statusful"
)

// ExecuteStatusEvents raises the one event an entity maps to its new
// identifier. The mapping is a table keyed by identifier, so at most one
// event is dispatched per change.
type ExecuteStatusEvents struct {
	bus     *Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewExecuteStatusEvents(bus *Bus, logger *slog.Logger, m *metrics.Metrics) *ExecuteStatusEvents {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecuteStatusEvents{bus: bus, logger: logger, metrics: m}
}

// Register subscribes the listener to StatusChanged on its bus.
func (l *ExecuteStatusEvents) Register() {
	l.bus.Subscribe(EventStatusChanged, l.Handle)
}

func (l *ExecuteStatusEvents) Handle(ctx context.Context, event statusful.Event) error {
	changed, ok := event.(*StatusChanged)
	if !ok || changed.Entity == nil {
		return nil
	}
	mapper, ok := changed.Entity.(statusful.EventMapper)
	if !ok {
		return nil
	}
	factory, ok := mapper.StatusEvents()[changed.Identifier]
	if !ok || factory == nil {
		return nil
	}
	mapped := factory(changed.Entity)
	if mapped == nil {
		return nil
	}
	return l.bus.DispatchTimed(ctx, mapped, func(ctx context.Context, err error) {
		l.metrics.IncrementNotificationFailures("event")
		l.logger.ErrorContext(ctx, "status event dispatch failed",
			"event", mapped.EventName(),
			"entity_type", changed.Entity.EntityType(),
			"error", err,
		)
	})
}
