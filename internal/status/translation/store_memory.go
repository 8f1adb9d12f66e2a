package translation

import (
	"context"
	"sort"
	"sync"

	"statusable/internal/status/models"
)

// InMemoryStore keeps translations in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	values   map[int64]map[string]map[string]string // status id -> locale -> field -> value
	fallback string
}

func NewInMemoryStore(fallbackLocale string) *InMemoryStore {
	return &InMemoryStore{
		values:   make(map[int64]map[string]map[string]string),
		fallback: fallbackLocale,
	}
}

func (s *InMemoryStore) Save(_ context.Context, statusID int64, locale string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byLocale, ok := s.values[statusID]
	if !ok {
		byLocale = make(map[string]map[string]string)
		s.values[statusID] = byLocale
	}
	byField, ok := byLocale[locale]
	if !ok {
		byField = make(map[string]string)
		byLocale[locale] = byField
	}
	for field, value := range fields {
		byField[field] = value
	}
	return nil
}

func (s *InMemoryStore) Localize(ctx context.Context, locale string, records []*models.Record) error {
	var translations []models.Translation
	for _, r := range records {
		all, err := s.All(ctx, r.ID)
		if err != nil {
			return err
		}
		translations = append(translations, all...)
	}
	apply(records, translations, locale, s.fallback)
	return nil
}

func (s *InMemoryStore) All(_ context.Context, statusID int64) ([]models.Translation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Translation
	for locale, byField := range s.values[statusID] {
		for field, value := range byField {
			out = append(out, models.Translation{StatusID: statusID, Locale: locale, Field: field, Value: value})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Locale != out[j].Locale {
			return out[i].Locale < out[j].Locale
		}
		return out[i].Field < out[j].Field
	})
	return out, nil
}
