package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"statusable/internal/status/models"
	"statusable/pkg/platform/sentinel"
)

// InMemoryStore keeps status records in process memory. It enforces the same
// (entity type, identifier) uniqueness as the postgres unique index.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[int64]*models.Record
	byKey   map[models.Key]int64
	nextID  int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[int64]*models.Record),
		byKey:   make(map[models.Key]int64),
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, id int64) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[id]; ok {
		return r.Clone(), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByKey(_ context.Context, entityType, identifier string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[models.Key{EntityType: entityType, Identifier: identifier}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.records[id].Clone(), nil
}

func (s *InMemoryStore) ListByEntityType(_ context.Context, entityType string) ([]*models.Record, error) {
	return s.filter(func(r *models.Record) bool { return r.EntityType == entityType }), nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*models.Record, error) {
	return s.filter(func(*models.Record) bool { return true }), nil
}

func (s *InMemoryStore) ListIDEntries(_ context.Context) ([]models.IDEntry, error) {
	records := s.filter(func(*models.Record) bool { return true })
	entries := make([]models.IDEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, r.Entry())
	}
	return entries, nil
}

func (s *InMemoryStore) Insert(_ context.Context, entityType, identifier string, now time.Time) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := models.Key{EntityType: entityType, Identifier: identifier}
	if _, exists := s.byKey[key]; exists {
		return nil, sentinel.ErrConflict
	}
	s.nextID++
	r := &models.Record{
		ID:         s.nextID,
		EntityType: entityType,
		Identifier: identifier,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.records[r.ID] = r
	s.byKey[key] = r.ID
	return r.Clone(), nil
}

func (s *InMemoryStore) ListPage(_ context.Context, entityType string, page, perPage int) (models.Page, error) {
	records := s.filter(func(r *models.Record) bool { return entityType == "" || r.EntityType == entityType })
	result := models.Page{Page: page, PerPage: perPage, Total: len(records)}

	start := (page - 1) * perPage
	if start >= len(records) || start < 0 {
		return result, nil
	}
	end := min(start+perPage, len(records))
	for i := len(records) - 1 - start; i >= len(records)-end; i-- {
		result.Records = append(result.Records, records[i])
	}
	return result, nil
}

func (s *InMemoryStore) Touch(_ context.Context, id int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	r.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) filter(keep func(*models.Record) bool) []*models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r.Clone())
		}
	}
	sortByID(out)
	return out
}

func sortByID(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}
