package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"statusable/internal/order/models"
	"statusable/pkg/platform/sentinel"
)

// InMemoryStore keeps orders in process memory.
type InMemoryStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*models.Order
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{orders: make(map[uuid.UUID]*models.Order)}
}

func (s *InMemoryStore) Create(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return sentinel.ErrConflict
	}
	s.orders[o.ID] = stored(o)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.orders[o.ID] = stored(o)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return o.Clone(), nil
}

// stored copies o as it would be read back: status column persisted.
func stored(o *models.Order) *models.Order {
	c := o.Clone()
	c.LoadStatusID(o.StatusID())
	return c
}
