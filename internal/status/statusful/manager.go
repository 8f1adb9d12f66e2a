package statusful

import (
	"context"
	"log/slog"

	"statusable/internal/status/metrics"
	"statusable/internal/status/registry"
	"statusable/pkg/platform/tx"
)

// PersistFunc writes the entity. It runs inside whatever transaction ctx carries.
type PersistFunc func(ctx context.Context) error

// Manager assigns statuses through the registry and announces changes on save.
type Manager struct {
	registry *registry.Registry
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	silent   bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func NewManager(reg *registry.Registry, notifier Notifier, opts ...ManagerOption) *Manager {
	m := &Manager{
		registry: reg,
		notifier: notifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// WithoutStatusEvents returns a Manager whose saves never notify.
func (m *Manager) WithoutStatusEvents() *Manager {
	c := *m
	c.silent = true
	return &c
}

// SetStatus resolves identifier for the entity's type and sets the column.
// Nothing is persisted.
func (m *Manager) SetStatus(ctx context.Context, e Statusful, identifier string) error {
	id, err := m.registry.ScopeFrom(ctx).LookupID(ctx, e.EntityType(), identifier)
	if err != nil {
		return err
	}
	e.SetStatusID(id)
	return nil
}

// StatusIs reports whether the entity currently has identifier.
func (m *Manager) StatusIs(ctx context.Context, e Statusful, identifier string) (bool, error) {
	id, err := m.registry.ScopeFrom(ctx).LookupID(ctx, e.EntityType(), identifier)
	if err != nil {
		return false, err
	}
	return e.StatusID() == id, nil
}

// UpdateStatus sets identifier and saves.
func (m *Manager) UpdateStatus(ctx context.Context, e Statusful, identifier string, persist PersistFunc) error {
	if err := m.SetStatus(ctx, e, identifier); err != nil {
		return err
	}
	return m.Save(ctx, e, persist)
}

// Save persists the entity and, when its status changed, notifies. A
// persistence error is returned untouched and nothing is announced. A failed
// notification is logged and counted but never fails the save.
func (m *Manager) Save(ctx context.Context, e Statusful, persist PersistFunc) error {
	changed := e.StatusChanged()
	if err := persist(ctx); err != nil {
		return err
	}
	markPersisted(ctx, e)

	if !changed || m.silent || m.notifier == nil {
		return nil
	}
	if err := m.notifier.StatusChanged(ctx, e); err != nil {
		m.metrics.IncrementNotificationFailures("event")
		m.logger.ErrorContext(ctx, "status change notification failed",
			"entity_type", e.EntityType(),
			"status_id", e.StatusID(),
			"error", err,
		)
	}
	return nil
}

// markPersisted marks e's status as persisted and, inside a unit of work,
// restores the previous persisted value if it rolls back.
func markPersisted(ctx context.Context, e Statusful) {
	p, ok := e.(persistence)
	if !ok {
		e.MarkStatusPersisted()
		return
	}
	previous := p.persistedStatusID()
	e.MarkStatusPersisted()
	tx.OnRollback(ctx, func() { p.restorePersistedStatusID(previous) })
}

// Identifier returns the entity's current identifier, "" when unset or unknown.
func (m *Manager) Identifier(ctx context.Context, e Statusful) string {
	return m.registry.ScopeFrom(ctx).StatusIdentifier(ctx, e.StatusID())
}

// Name returns the entity's current localized status name.
func (m *Manager) Name(ctx context.Context, e Statusful) string {
	return m.registry.ScopeFrom(ctx).StatusName(ctx, e.StatusID())
}
