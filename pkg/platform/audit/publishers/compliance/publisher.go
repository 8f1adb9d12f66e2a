// Package compliance provides a fail-closed audit publisher for
// administrative changes.
//
// Events are written synchronously and the caller blocks until the write
// succeeds. If the write fails, an error is returned and the calling
// operation MUST fail.
//
// Use for: status_translated
package compliance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "statusable/pkg/platform/audit"
)

// Metrics counts compliance writes.
type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the compliance metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "statusable_audit_compliance_events_total",
			Help: "Compliance audit events persisted",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "statusable_audit_compliance_failures_total",
			Help: "Compliance audit events that could not be persisted",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "statusable_audit_compliance_persist_seconds",
			Help:    "Time to persist a compliance audit event",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Publisher emits compliance events with fail-closed semantics.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New creates a compliance publisher.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously writes a compliance event to the audit store. Writes
// join the transaction carried by ctx.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	start := time.Now()

	if event.Action == "" {
		return fmt.Errorf("compliance event requires Action")
	}
	if event.Subject == "" {
		return fmt.Errorf("compliance event requires Subject")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = audit.CategoryCompliance

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.PersistFailures.Inc()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "CRITICAL: compliance audit failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.PersistDuration.Observe(time.Since(start).Seconds())
		p.metrics.EventsEmitted.Inc()
	}
	return nil
}
