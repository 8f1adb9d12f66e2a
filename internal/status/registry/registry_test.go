package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"statusable/internal/status/cache"
	"statusable/internal/status/metrics"
	"statusable/internal/status/models"
	"statusable/internal/status/store"
	"statusable/internal/status/translation"
	dErrors "statusable/pkg/domain-errors"
	"statusable/pkg/requestcontext"
)

// countingStore records store traffic and can fail inserts for one entity type.
type countingStore struct {
	*store.InMemoryStore
	inserts   atomic.Int32
	attempts  atomic.Int32
	loads     atomic.Int32
	failType  string
	insertErr error
}

func newCountingStore() *countingStore {
	return &countingStore{InMemoryStore: store.NewInMemoryStore()}
}

func (s *countingStore) Insert(ctx context.Context, entityType, identifier string, now time.Time) (*models.Record, error) {
	s.attempts.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.insertErr != nil && (s.failType == "" || s.failType == entityType) {
		return nil, s.insertErr
	}
	r, err := s.InMemoryStore.Insert(ctx, entityType, identifier, now)
	if err == nil {
		s.inserts.Add(1)
	}
	return r, err
}

func (s *countingStore) ListIDEntries(ctx context.Context) ([]models.IDEntry, error) {
	s.loads.Add(1)
	return s.InMemoryStore.ListIDEntries(ctx)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]models.IDEntry, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Put(context.Context, string, []models.IDEntry) error {
	return errors.New("cache down")
}
func (failingCache) Append(context.Context, string, models.IDEntry) error {
	return errors.New("cache down")
}

type entityType struct {
	name        string
	identifiers []string
}

func (e entityType) EntityType() string          { return e.name }
func (e entityType) StatusIdentifiers() []string { return e.identifiers }

type RegistrySuite struct {
	suite.Suite
	ctx          context.Context
	store        *countingStore
	cache        *cache.InMemoryIndexCache
	translations *translation.InMemoryStore
	metrics      *metrics.Metrics
	registry     *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.store = newCountingStore()
	s.cache = cache.NewInMemoryIndexCache()
	s.translations = translation.NewInMemoryStore("en")
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.registry = s.newRegistry(DefaultConfig())
}

func (s *RegistrySuite) newRegistry(cfg Config) *Registry {
	return New(s.store, s.cache, s.translations, cfg, WithMetrics(s.metrics))
}

// TestInvoiceOverdueScenario walks the registry from empty through creation,
// repeat lookup and record reads.
func (s *RegistrySuite) TestInvoiceOverdueScenario() {
	scope := s.registry.NewScope("en")

	id, err := scope.LookupID(s.ctx, "Invoice", "overdue")
	s.Require().NoError(err)
	s.Equal(int64(1), id)

	again, err := scope.LookupID(s.ctx, "Invoice", "overdue")
	s.Require().NoError(err)
	s.Equal(int64(1), again)
	s.Equal(int32(1), s.store.inserts.Load())

	for _, useCache := range []bool{true, false} {
		s.Run(fmt.Sprintf("find with cache=%t", useCache), func() {
			record, found, err := scope.FindRecord(s.ctx, 1, WithCache(useCache))
			s.Require().NoError(err)
			s.Require().True(found)
			s.Equal("overdue", record.Identifier)
			s.Equal("Overdue", record.Name)

			record, found, err = scope.FindRecord(s.ctx, 999, WithCache(useCache))
			s.Require().NoError(err)
			s.False(found)
			s.Nil(record)
		})
	}
}

func (s *RegistrySuite) TestHumanizedDefaultName() {
	scope := s.registry.NewScope("")
	id, err := scope.LookupID(s.ctx, "Order", "order_placed")
	s.Require().NoError(err)

	all, err := s.translations.All(s.ctx, id)
	s.Require().NoError(err)
	s.Equal([]models.Translation{{StatusID: id, Locale: "en", Field: "name", Value: "Order Placed"}}, all)
	s.Equal("Order Placed", scope.StatusName(s.ctx, id))
}

func (s *RegistrySuite) TestUniquenessUnderConcurrency() {
	s.Run("one registry, many scopes", func() {
		s.assertSingleRecord([]*Registry{s.registry}, "Order", "placed")
	})

	s.Run("independent registries sharing store and cache", func() {
		others := []*Registry{s.newRegistry(DefaultConfig()), s.newRegistry(DefaultConfig()), s.newRegistry(DefaultConfig())}
		s.assertSingleRecord(others, "Order", "paid")
	})
}

func (s *RegistrySuite) assertSingleRecord(registries []*Registry, entityType, identifier string) {
	const workers = 40
	before := s.store.inserts.Load()
	ids := make([]int64, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scope := registries[i%len(registries)].NewScope("en")
			ids[i], errs[i] = scope.LookupID(s.ctx, entityType, identifier)
		}()
	}
	wg.Wait()

	for i := range workers {
		s.Require().NoError(errs[i])
		s.Equal(ids[0], ids[i])
	}
	s.Equal(before+1, s.store.inserts.Load())
	records, err := s.store.ListByEntityType(s.ctx, entityType)
	s.Require().NoError(err)
	count := 0
	for _, r := range records {
		if r.Identifier == identifier {
			count++
		}
	}
	s.Equal(1, count)
}

func (s *RegistrySuite) TestCacheCoherenceAcrossScopes() {
	s.Run("new scope sees a created status without inserting", func() {
		first := s.registry.NewScope("en")
		id, err := first.LookupID(s.ctx, "Order", "shipped")
		s.Require().NoError(err)
		attempts := s.store.attempts.Load()
		loads := s.store.loads.Load()

		second := s.registry.NewScope("en")
		got, err := second.LookupID(s.ctx, "Order", "shipped")
		s.Require().NoError(err)
		s.Equal(id, got)
		s.Equal(attempts, s.store.attempts.Load(), "no insert attempted")
		s.Equal(loads, s.store.loads.Load(), "served from the distributed index")
	})

	s.Run("scope loaded before the creation recovers through the conflict", func() {
		stale := s.registry.NewScope("en")
		_, err := stale.LookupID(s.ctx, "Order", "shipped")
		s.Require().NoError(err)

		id, err := s.registry.NewScope("en").LookupID(s.ctx, "Order", "delivered")
		s.Require().NoError(err)

		inserts := s.store.inserts.Load()
		got, err := stale.LookupID(s.ctx, "Order", "delivered")
		s.Require().NoError(err)
		s.Equal(id, got)
		s.Equal(inserts, s.store.inserts.Load())
		s.Equal(1.0, testutil.ToFloat64(s.metrics.CreationConflicts))
	})
}

func (s *RegistrySuite) TestIndexResolutionOrder() {
	s.Run("trusts the distributed index over the store", func() {
		s.Require().NoError(s.cache.Put(s.ctx, "statuses", []models.IDEntry{{ID: 77, EntityType: "Order", Identifier: "placed"}}))

		id, err := s.registry.NewScope("en").LookupID(s.ctx, "Order", "placed")
		s.Require().NoError(err)
		s.Equal(int64(77), id)
		s.Zero(s.store.loads.Load())
	})

	s.Run("cold distributed index is filled from the store", func() {
		s.cache.Forget("statuses")
		_, err := s.registry.NewScope("en").LookupID(s.ctx, "Order", "placed")
		s.Require().NoError(err)
		s.Equal(int32(1), s.store.loads.Load())

		entries, found, err := s.cache.Get(s.ctx, "statuses")
		s.Require().NoError(err)
		s.True(found)
		s.Len(entries, 1)
	})

	s.Run("disabled id caching reloads on every lookup", func() {
		cfg := DefaultConfig()
		cfg.CacheIDs = false
		scope := s.newRegistry(cfg).NewScope("en")
		loads := s.store.loads.Load()

		for range 3 {
			_, err := scope.LookupID(s.ctx, "Order", "placed")
			s.Require().NoError(err)
		}
		s.Equal(loads+3, s.store.loads.Load())
	})
}

func (s *RegistrySuite) TestWarmIndex() {
	_, err := s.store.Insert(s.ctx, "Order", "placed", time.Now())
	s.Require().NoError(err)

	n, err := s.registry.WarmIndex(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(int32(1), s.store.loads.Load())

	n, err = s.registry.WarmIndex(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Equal(int32(1), s.store.loads.Load(), "warm cache is not reloaded")
}

func (s *RegistrySuite) TestUnavailableDistributedCacheFallsBackToStore() {
	reg := New(s.store, failingCache{}, s.translations, DefaultConfig())
	scope := reg.NewScope("en")

	id, err := scope.LookupID(s.ctx, "Order", "placed")
	s.Require().NoError(err)
	got, err := reg.NewScope("en").LookupID(s.ctx, "Order", "placed")
	s.Require().NoError(err)
	s.Equal(id, got)
	s.Equal(int32(1), s.store.inserts.Load())
}

func (s *RegistrySuite) TestCreationFailureIsFatal() {
	storeErr := errors.New("connection reset")
	s.store.insertErr = storeErr

	_, err := s.registry.NewScope("en").LookupID(s.ctx, "Order", "placed")
	s.Require().Error(err)
	s.ErrorIs(err, ErrCreationFailed)
	s.ErrorIs(err, storeErr)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RegistrySuite) TestSnapshotReads() {
	scope := s.registry.NewScope("en")
	for _, key := range [][2]string{{"Order", "placed"}, {"Invoice", "open"}, {"Order", "paid"}} {
		_, err := scope.LookupID(s.ctx, key[0], key[1])
		s.Require().NoError(err)
	}

	s.Run("all records filtered and ordered by id", func() {
		records, err := scope.AllRecords(s.ctx, "Order")
		s.Require().NoError(err)
		s.Require().Len(records, 2)
		s.Equal("placed", records[0].Identifier)
		s.Equal("paid", records[1].Identifier)

		all, err := scope.AllRecords(s.ctx, "")
		s.Require().NoError(err)
		s.Len(all, 3)
	})

	s.Run("creation after the snapshot loaded is visible", func() {
		id, err := scope.LookupID(s.ctx, "Order", "refunded")
		s.Require().NoError(err)
		record, found, err := scope.FindRecord(s.ctx, id)
		s.Require().NoError(err)
		s.Require().True(found)
		s.Equal("Refunded", record.Name)
	})

	s.Run("display helpers", func() {
		s.Equal("open", scope.StatusIdentifier(s.ctx, 2))
		s.Equal("", scope.StatusIdentifier(s.ctx, 999))
		s.Equal("", scope.StatusName(s.ctx, 999))

		identifier, found, err := scope.IdentifierOf(s.ctx, "Order", 2)
		s.Require().NoError(err)
		s.False(found, "id 2 belongs to Invoice")
		s.Empty(identifier)
	})

	s.Run("snapshot is a per-scope copy", func() {
		records, err := scope.AllRecords(s.ctx, "Order")
		s.Require().NoError(err)
		records[0].Name = "mutated"
		again, err := scope.AllRecords(s.ctx, "Order")
		s.Require().NoError(err)
		s.Equal("Placed", again[0].Name)
	})
}

func (s *RegistrySuite) TestReverseLookupSeesStatusesCreatedLater() {
	early := s.registry.NewScope("en")
	_, err := early.LookupID(s.ctx, "Parcel", "placed")
	s.Require().NoError(err)
	_, err = early.AllRecords(s.ctx, "")
	s.Require().NoError(err)

	shipped, err := s.registry.NewScope("en").LookupID(s.ctx, "Parcel", "shipped")
	s.Require().NoError(err)

	s.Run("from the distributed index", func() {
		identifier, found, err := early.IdentifierOf(s.ctx, "Parcel", shipped)
		s.Require().NoError(err)
		s.True(found)
		s.Equal("shipped", identifier)
		s.Equal("Shipped", early.StatusName(s.ctx, shipped))
	})

	s.Run("from the store when the distributed index is down", func() {
		reg := New(s.store, failingCache{}, s.translations, DefaultConfig())
		stale := reg.NewScope("en")
		_, err := stale.LookupID(s.ctx, "Parcel", "placed")
		s.Require().NoError(err)

		delivered, err := reg.NewScope("en").LookupID(s.ctx, "Parcel", "delivered")
		s.Require().NoError(err)

		s.Equal("delivered", stale.StatusIdentifier(s.ctx, delivered))
		identifier, found, err := stale.IdentifierOf(s.ctx, "Invoice", delivered)
		s.Require().NoError(err)
		s.False(found, "type filter still applies")
		s.Empty(identifier)
	})

	s.Run("unknown ids stay unknown", func() {
		_, found, err := early.IdentifierOf(s.ctx, "", 999)
		s.Require().NoError(err)
		s.False(found)
	})
}

func (s *RegistrySuite) TestCreationIgnoresCallerCancellation() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	id, err := s.registry.NewScope("en").LookupID(ctx, "Order", "placed")
	s.Require().NoError(err)
	s.NotZero(id)
	s.Equal(int32(1), s.store.inserts.Load())
}

func (s *RegistrySuite) TestAllRecordsWithoutRecordCache() {
	cfg := DefaultConfig()
	cfg.CacheRecords = false
	reg := s.newRegistry(cfg)
	scope := reg.NewScope("en")
	for _, key := range [][2]string{{"Order", "placed"}, {"Invoice", "open"}} {
		_, err := scope.LookupID(s.ctx, key[0], key[1])
		s.Require().NoError(err)
	}

	orders, err := scope.AllRecords(s.ctx, "Order")
	s.Require().NoError(err)
	s.Require().Len(orders, 1)
	s.Equal("Placed", orders[0].Name)

	_, err = reg.NewScope("en").LookupID(s.ctx, "Order", "paid")
	s.Require().NoError(err)

	orders, err = scope.AllRecords(s.ctx, "Order")
	s.Require().NoError(err)
	s.Len(orders, 2, "every call reads the store")

	all, err := scope.AllRecords(s.ctx, "")
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *RegistrySuite) TestScopeFromContext() {
	scope := s.registry.NewScope("nl")
	ctx := WithScope(s.ctx, scope)
	s.Same(scope, s.registry.ScopeFrom(ctx))

	fresh := s.registry.ScopeFrom(requestcontext.WithLocale(s.ctx, "de"))
	s.NotSame(scope, fresh)
	s.Equal("de", fresh.Locale())
	s.Equal("en", s.registry.ScopeFrom(s.ctx).Locale())
}

func (s *RegistrySuite) TestScopePerRequest() {
	var seen []*Scope
	h := s.registry.ScopePerRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := s.registry.ScopeFrom(r.Context())
		s.Same(scope, s.registry.ScopeFrom(r.Context()))
		seen = append(seen, scope)
	}))

	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/statuses", nil)
		req = req.WithContext(requestcontext.WithLocale(req.Context(), "fr"))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	s.Require().Len(seen, 2)
	s.NotSame(seen[0], seen[1])
	s.Equal("fr", seen[0].Locale())
}

func (s *RegistrySuite) TestSeeding() {
	s.registry.RegisterEntityType(entityType{name: "Order", identifiers: []string{"placed", "paid", "shipped"}})
	s.registry.RegisterEntityType(entityType{name: "Invoice", identifiers: []string{"open", "overdue"}})
	s.Equal([]string{"Invoice", "Order"}, s.registry.RegisteredEntityTypes())

	s.Run("creates every missing status", func() {
		_, err := s.registry.NewScope("en").LookupID(s.ctx, "Order", "paid")
		s.Require().NoError(err)

		report, err := s.registry.SeedMissingStatuses(s.ctx)
		s.Require().NoError(err)
		s.Equal(4, report.Created())
		s.Empty(report.Failed())
		s.Equal(1, report.Results[1].Existing)
	})

	s.Run("second run is a no-op", func() {
		before, err := s.store.List(s.ctx)
		s.Require().NoError(err)
		inserts := s.store.inserts.Load()

		report, err := s.registry.SeedMissingStatuses(s.ctx)
		s.Require().NoError(err)
		s.Zero(report.Created())
		s.Equal(inserts, s.store.inserts.Load())

		after, err := s.store.List(s.ctx)
		s.Require().NoError(err)
		s.Equal(before, after)
	})
}

func (s *RegistrySuite) TestSeedingContinuesPastFailures() {
	s.registry.RegisterEntityType(entityType{name: "Broken", identifiers: []string{"x"}})
	s.registry.RegisterEntityType(entityType{name: "Order", identifiers: []string{"placed"}})
	s.store.failType = "Broken"
	s.store.insertErr = errors.New("disk full")

	report, err := s.registry.SeedMissingStatuses(s.ctx)
	s.Require().Error(err)
	s.ErrorIs(err, ErrCreationFailed)
	s.Equal([]string{"Broken"}, report.Failed())
	s.Equal(1, report.Created())

	_, err = s.store.FindByKey(s.ctx, "Order", "placed")
	s.NoError(err)
}
