package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"statusable/internal/status/metrics"
	"statusable/internal/status/models"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/requestcontext"
)

// Scope is one unit of work's view of the registry. Its id-index and record
// snapshot are loaded at most once and die with the scope. A Scope is safe
// for concurrent use.
type Scope struct {
	reg    *Registry
	locale string

	mu          sync.Mutex
	index       []models.IDEntry
	byKey       map[models.Key]int64
	indexLoaded bool

	records       []*models.Record
	recordsLoaded bool
}

// NewScope starts a unit of work resolving names in locale. An empty locale
// uses the default locale.
func (r *Registry) NewScope(locale string) *Scope {
	if locale == "" {
		locale = r.cfg.DefaultLocale
	}
	return &Scope{reg: r, locale: locale}
}

type scopeKey struct{}

// WithScope attaches s to ctx.
func WithScope(ctx context.Context, s *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope attached to ctx, or a fresh one in the
// request's locale when there is none.
func (r *Registry) ScopeFrom(ctx context.Context) *Scope {
	if s, ok := ctx.Value(scopeKey{}).(*Scope); ok && s != nil && s.reg == r {
		return s
	}
	return r.NewScope(requestcontext.Locale(ctx))
}

// Locale returns the locale names are resolved in.
func (s *Scope) Locale() string {
	return s.locale
}

// LookupID resolves the pair to its status id, creating the status on a
// total miss.
func (s *Scope) LookupID(ctx context.Context, entityType, identifier string) (int64, error) {
	start := time.Now()
	defer s.reg.metrics.ObserveLookup(start)

	key := models.Key{EntityType: entityType, Identifier: identifier}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureIndexLocked(ctx); err != nil {
		return 0, err
	}
	if id, ok := s.byKey[key]; ok {
		return id, nil
	}

	record, err := s.reg.create(ctx, key)
	if err != nil {
		return 0, err
	}
	s.addLocked(ctx, record)
	return record.ID, nil
}

// ensureIndexLocked makes the local id-index usable. A populated local index
// is trusted unless id caching is disabled; otherwise the distributed copy is
// tried before a full store load.
func (s *Scope) ensureIndexLocked(ctx context.Context) error {
	reg := s.reg
	reload := !reg.cfg.CacheIDs
	if !reload && s.indexLoaded && len(s.index) > 0 {
		reg.metrics.IncrementIndexLookup(metrics.LayerLocal, metrics.ResultHit)
		return nil
	}
	reg.metrics.IncrementIndexLookup(metrics.LayerLocal, metrics.ResultMiss)

	if !reload {
		if entries, found := reg.cachedIndex(ctx); found {
			reg.metrics.IncrementIndexLookup(metrics.LayerDistributed, metrics.ResultHit)
			s.setIndexLocked(entries)
			return nil
		}
		reg.metrics.IncrementIndexLookup(metrics.LayerDistributed, metrics.ResultMiss)
	}

	entries, err := reg.loadIndexFromStore(ctx)
	if err != nil {
		return err
	}
	reg.metrics.IncrementIndexLookup(metrics.LayerStore, metrics.ResultHit)
	s.setIndexLocked(entries)
	return nil
}

func (s *Scope) setIndexLocked(entries []models.IDEntry) {
	s.index = entries
	s.byKey = make(map[models.Key]int64, len(entries))
	for _, e := range entries {
		s.byKey[e.Key()] = e.ID
	}
	s.indexLoaded = true
}

// addLocked appends a freshly created or re-read record to the local caches
// and to the distributed index.
func (s *Scope) addLocked(ctx context.Context, record *models.Record) {
	entry := record.Entry()
	if _, ok := s.byKey[entry.Key()]; !ok {
		s.index = append(s.index, entry)
		s.byKey[entry.Key()] = entry.ID
	}
	if err := s.reg.cache.Append(ctx, s.reg.cfg.CacheKey, entry); err != nil {
		s.reg.logger.WarnContext(ctx, "failed to append to distributed status index",
			"status_id", entry.ID,
			"error", err,
		)
	}
	if !s.recordsLoaded {
		return
	}
	for _, r := range s.records {
		if r.ID == record.ID {
			return
		}
	}
	localized := record.Clone()
	if err := s.reg.translator.Localize(ctx, s.locale, []*models.Record{localized}); err != nil {
		s.reg.logger.WarnContext(ctx, "failed to localize status", "status_id", record.ID, "error", err)
	}
	s.records = append(s.records, localized)
}

// FindOption adjusts a single FindRecord call.
type FindOption func(*findOptions)

type findOptions struct {
	useCache bool
}

// WithCache overrides whether FindRecord serves from the scope's snapshot.
func WithCache(use bool) FindOption {
	return func(o *findOptions) {
		o.useCache = use
	}
}

// FindRecord returns the record with id. Unknown ids report found=false
// with a nil error.
func (s *Scope) FindRecord(ctx context.Context, id int64, opts ...FindOption) (*models.Record, bool, error) {
	o := findOptions{useCache: s.reg.cfg.CacheRecords}
	for _, opt := range opts {
		opt(&o)
	}

	if o.useCache {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.ensureRecordsLocked(ctx); err != nil {
			return nil, false, err
		}
		for _, r := range s.records {
			if r.ID == id {
				return r.Clone(), true, nil
			}
		}
		record, found, err := s.findInStore(ctx, id)
		if err != nil || !found {
			return nil, false, err
		}
		s.records = append(s.records, record)
		return record.Clone(), true, nil
	}

	return s.findInStore(ctx, id)
}

// findInStore reads and localizes one record, bypassing the snapshot.
func (s *Scope) findInStore(ctx context.Context, id int64) (*models.Record, bool, error) {
	if id <= 0 {
		return nil, false, nil
	}
	record, err := s.reg.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if err := s.reg.translator.Localize(ctx, s.locale, []*models.Record{record}); err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// AllRecords returns the records ordered by id, restricted to entityType
// unless it is empty. They come from the snapshot when records are cached.
func (s *Scope) AllRecords(ctx context.Context, entityType string) ([]*models.Record, error) {
	if !s.reg.cfg.CacheRecords {
		return s.listFromStore(ctx, entityType)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureRecordsLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]*models.Record, 0, len(s.records))
	for _, r := range s.records {
		if entityType == "" || r.EntityType == entityType {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (s *Scope) listFromStore(ctx context.Context, entityType string) ([]*models.Record, error) {
	var (
		records []*models.Record
		err     error
	)
	if entityType == "" {
		records, err = s.reg.store.List(ctx)
	} else {
		records, err = s.reg.store.ListByEntityType(ctx, entityType)
	}
	if err != nil {
		return nil, err
	}
	if err := s.reg.translator.Localize(ctx, s.locale, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Scope) ensureRecordsLocked(ctx context.Context) error {
	if s.recordsLoaded {
		return nil
	}
	reg := s.reg
	var records []*models.Record
	err := reg.traced(ctx, "status.load_snapshot", nil, func(ctx context.Context) error {
		var err error
		if records, err = reg.store.List(ctx); err != nil {
			return err
		}
		return reg.translator.Localize(ctx, s.locale, records)
	})
	if err != nil {
		return err
	}
	reg.metrics.IncrementStoreLoads()
	s.records = records
	s.recordsLoaded = true
	return nil
}

// IdentifierOf returns the identifier of status id within entityType without
// creating anything.
func (s *Scope) IdentifierOf(ctx context.Context, entityType string, id int64) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIndexLocked(ctx); err != nil {
		return "", false, err
	}
	entry, found := s.entryLocked(id)
	if !found && id > 0 {
		var err error
		if entry, found, err = s.refreshEntryLocked(ctx, id); err != nil {
			return "", false, err
		}
	}
	if !found || (entityType != "" && entry.EntityType != entityType) {
		return "", false, nil
	}
	return entry.Identifier, true, nil
}

func (s *Scope) entryLocked(id int64) (models.IDEntry, bool) {
	for _, e := range s.index {
		if e.ID == id {
			return e, true
		}
	}
	return models.IDEntry{}, false
}

// refreshEntryLocked resolves an id missing from the local index, which
// happens when another unit of work created the status after this scope
// loaded. The distributed index is tried first, then the store.
func (s *Scope) refreshEntryLocked(ctx context.Context, id int64) (models.IDEntry, bool, error) {
	reg := s.reg
	if entries, found := reg.cachedIndex(ctx); found {
		s.mergeLocked(entries)
		if entry, ok := s.entryLocked(id); ok {
			reg.metrics.IncrementIndexLookup(metrics.LayerDistributed, metrics.ResultHit)
			return entry, true, nil
		}
	}
	reg.metrics.IncrementIndexLookup(metrics.LayerDistributed, metrics.ResultMiss)

	record, err := reg.store.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.IDEntry{}, false, nil
	}
	if err != nil {
		return models.IDEntry{}, false, fmt.Errorf("resolve status %d: %w", id, err)
	}
	reg.metrics.IncrementIndexLookup(metrics.LayerStore, metrics.ResultHit)
	s.addLocked(ctx, record)
	return record.Entry(), true, nil
}

// mergeLocked adds the entries the local index does not hold yet.
func (s *Scope) mergeLocked(entries []models.IDEntry) {
	for _, e := range entries {
		if _, ok := s.byKey[e.Key()]; !ok {
			s.index = append(s.index, e)
			s.byKey[e.Key()] = e.ID
		}
	}
}

// StatusIdentifier returns the identifier of id, or "" when it is unknown.
func (s *Scope) StatusIdentifier(ctx context.Context, id int64) string {
	identifier, _, err := s.IdentifierOf(ctx, "", id)
	if err != nil {
		s.reg.logger.WarnContext(ctx, "status identifier unavailable", "status_id", id, "error", err)
	}
	return identifier
}

// StatusName returns the localized name of id, or "" when it is unknown.
func (s *Scope) StatusName(ctx context.Context, id int64) string {
	record, found, err := s.FindRecord(ctx, id)
	if err != nil {
		s.reg.logger.WarnContext(ctx, "status name unavailable", "status_id", id, "error", err)
		return ""
	}
	if !found {
		return ""
	}
	return record.Name
}

func (s *Scope) has(entityType, identifier string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.byKey[models.Key{EntityType: entityType, Identifier: identifier}]
	return ok
}
