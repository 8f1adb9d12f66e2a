// Package registry maps (entity type, identifier) pairs to stable status ids.
//
// A Registry is process-wide: it owns the store, the distributed id-index
// cache and the set of registered entity types. Each unit of work resolves
// ids through its own Scope, which holds the local id-index and the full
// record snapshot for that unit of work only.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"statusable/internal/status/metrics"
	"statusable/internal/status/models"
	"statusable/internal/status/translation"
	dErrors "statusable/pkg/domain-errors"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/platform/tx"
)

// ErrCreationFailed marks a status that could not be created. It is fatal to
// the calling operation: an entity must never carry an unresolved status.
var ErrCreationFailed = errors.New("status creation failed")

// Store is the persistence the registry reads and creates records through.
// Insert must return sentinel.ErrConflict for a duplicate pair.
type Store interface {
	FindByID(ctx context.Context, id int64) (*models.Record, error)
	FindByKey(ctx context.Context, entityType, identifier string) (*models.Record, error)
	ListByEntityType(ctx context.Context, entityType string) ([]*models.Record, error)
	List(ctx context.Context) ([]*models.Record, error)
	ListIDEntries(ctx context.Context) ([]models.IDEntry, error)
	Insert(ctx context.Context, entityType, identifier string, now time.Time) (*models.Record, error)
}

// IndexCache holds the whole id-index under one key, shared by all processes.
type IndexCache interface {
	Get(ctx context.Context, key string) ([]models.IDEntry, bool, error)
	Put(ctx context.Context, key string, entries []models.IDEntry) error
	Append(ctx context.Context, key string, entry models.IDEntry) error
}

// Translator attaches per-locale names to records.
type Translator interface {
	Save(ctx context.Context, statusID int64, locale string, fields map[string]string) error
	Localize(ctx context.Context, locale string, records []*models.Record) error
}

// EntityType is the part of a statusful entity seeding needs: its type name
// and its closed list of identifiers.
type EntityType interface {
	EntityType() string
	StatusIdentifiers() []string
}

// Config mirrors the status caching flags.
type Config struct {
	// CacheRecords is the default for FindRecord's snapshot use. Without it
	// AllRecords reads the store on every call.
	CacheRecords bool
	// CacheIDs trusts the local and distributed id-index; false reloads from
	// the store on every lookup.
	CacheIDs      bool
	CacheKey      string
	DefaultLocale string
}

// DefaultConfig returns caching enabled under the "statuses" key.
func DefaultConfig() Config {
	return Config{CacheRecords: true, CacheIDs: true, CacheKey: "statuses", DefaultLocale: "en"}
}

type Registry struct {
	store      Store
	cache      IndexCache
	translator Translator
	cfg        Config

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	typesMu     sync.RWMutex
	entityTypes map[string]EntityType

	creating singleflight.Group
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store Store, cache IndexCache, translator Translator, cfg Config, opts ...Option) *Registry {
	if cfg.CacheKey == "" {
		cfg.CacheKey = "statuses"
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = "en"
	}
	r := &Registry{
		store:       store,
		cache:       cache,
		translator:  translator,
		cfg:         cfg,
		logger:      slog.Default(),
		tracer:      otel.Tracer("statusable/status/registry"),
		now:         time.Now,
		entityTypes: make(map[string]EntityType),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the registry's caching configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// RegisterEntityType adds t to the set of types seeding covers. Registering
// the same type name again replaces the earlier declaration.
func (r *Registry) RegisterEntityType(t EntityType) {
	r.typesMu.Lock()
	defer r.typesMu.Unlock()
	r.entityTypes[t.EntityType()] = t
}

// RegisteredEntityTypes returns the registered type names, sorted.
func (r *Registry) RegisteredEntityTypes() []string {
	r.typesMu.RLock()
	defer r.typesMu.RUnlock()
	names := make([]string, 0, len(r.entityTypes))
	for name := range r.entityTypes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) entityType(name string) (EntityType, bool) {
	r.typesMu.RLock()
	defer r.typesMu.RUnlock()
	t, ok := r.entityTypes[name]
	return t, ok
}

// loadIndexFromStore reads the full id-index and overwrites the distributed
// copy with it. A failed cache write is logged; the store result stands.
func (r *Registry) loadIndexFromStore(ctx context.Context) ([]models.IDEntry, error) {
	var entries []models.IDEntry
	err := r.traced(ctx, "status.load_index", nil, func(ctx context.Context) error {
		var err error
		entries, err = r.store.ListIDEntries(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load status index: %w", err)
	}
	r.metrics.IncrementStoreLoads()
	if err := r.cache.Put(ctx, r.cfg.CacheKey, entries); err != nil {
		r.logger.WarnContext(ctx, "failed to refresh distributed status index", "error", err)
	}
	return entries, nil
}

// cachedIndex returns the distributed copy of the id-index. Cache errors are
// treated as a miss.
func (r *Registry) cachedIndex(ctx context.Context) ([]models.IDEntry, bool) {
	entries, found, err := r.cache.Get(ctx, r.cfg.CacheKey)
	if err != nil {
		r.logger.WarnContext(ctx, "distributed status index unavailable", "error", err)
		return nil, false
	}
	return entries, found
}

// WarmIndex fills the distributed id-index from the store when it is absent
// and returns the number of entries it holds.
func (r *Registry) WarmIndex(ctx context.Context) (int, error) {
	if entries, ok := r.cachedIndex(ctx); ok {
		return len(entries), nil
	}
	entries, err := r.loadIndexFromStore(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// create inserts the record for key, or re-reads it when a concurrent caller
// won the race. Callers in this process share one attempt per key, so the
// attempt runs outside the first caller's transaction and cancellation.
func (r *Registry) create(ctx context.Context, key models.Key) (*models.Record, error) {
	shared := context.WithoutCancel(tx.Detached(ctx))
	v, err, _ := r.creating.Do(key.EntityType+"\x00"+key.Identifier, func() (any, error) {
		var record *models.Record
		attrs := []attribute.KeyValue{
			attribute.String("entity_type", key.EntityType),
			attribute.String("identifier", key.Identifier),
		}
		err := r.traced(shared, "status.create", attrs, func(ctx context.Context) error {
			var err error
			record, err = r.insert(ctx, key)
			return err
		})
		return record, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Record).Clone(), nil
}

func (r *Registry) insert(ctx context.Context, key models.Key) (*models.Record, error) {
	record, err := r.store.Insert(ctx, key.EntityType, key.Identifier, r.now())
	if errors.Is(err, sentinel.ErrConflict) {
		r.metrics.IncrementConflicts()
		existing, findErr := r.store.FindByKey(ctx, key.EntityType, key.Identifier)
		if findErr != nil {
			return nil, creationFailed(key, findErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, creationFailed(key, err)
	}
	r.metrics.IncrementCreated(key.EntityType)

	name := translation.Humanize(key.Identifier)
	if err := r.translator.Save(ctx, record.ID, r.cfg.DefaultLocale, map[string]string{models.FieldName: name}); err != nil {
		r.logger.WarnContext(ctx, "failed to seed default status name",
			"status_id", record.ID,
			"entity_type", key.EntityType,
			"error", err,
		)
	}
	r.logger.InfoContext(ctx, "status created",
		"status_id", record.ID,
		"entity_type", key.EntityType,
		"identifier", key.Identifier,
	)
	return record, nil
}

func creationFailed(key models.Key, err error) error {
	return dErrors.Wrap(
		fmt.Errorf("%w: %s/%s: %w", ErrCreationFailed, key.EntityType, key.Identifier, err),
		dErrors.CodeInternal,
		"status could not be created",
	)
}

func (r *Registry) traced(ctx context.Context, name string, attrs []attribute.KeyValue, op func(ctx context.Context) error) error {
	ctx, span := r.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()
	if err := op(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
