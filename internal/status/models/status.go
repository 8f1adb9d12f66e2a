package models

import (
	"slices"
	"time"
)

// Translatable fields of a status record.
const (
	FieldName        = "name"
	FieldDescription = "description"
)

// TranslatableFields lists the fields a status can be translated on, in display order.
var TranslatableFields = []string{FieldName, FieldDescription}

// IsTranslatable reports whether field is one of TranslatableFields.
func IsTranslatable(field string) bool {
	return slices.Contains(TranslatableFields, field)
}

// Record is a persisted status.
//
// Invariants:
//   - (EntityType, Identifier) is unique across all records
//   - ID and (EntityType, Identifier) never change after creation
//   - Name and Description are per-locale views; they are the only mutable part
type Record struct {
	ID          int64     `json:"id"`
	EntityType  string    `json:"statusable_type"`
	Identifier  string    `json:"identifier"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Key returns the (entity type, identifier) pair of the record.
func (r *Record) Key() Key {
	return Key{EntityType: r.EntityType, Identifier: r.Identifier}
}

// Entry projects the record into the id-index.
func (r *Record) Entry() IDEntry {
	return IDEntry{ID: r.ID, EntityType: r.EntityType, Identifier: r.Identifier}
}

// Clone returns a copy that callers may mutate without touching cached state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Key identifies a status by entity type and identifier.
type Key struct {
	EntityType string
	Identifier string
}

// IDEntry is one row of the id-index: the minimal projection needed to resolve
// a key to an id. The distributed cache stores a JSON array of these.
type IDEntry struct {
	ID         int64  `json:"id"`
	EntityType string `json:"statusable_type"`
	Identifier string `json:"identifier"`
}

// Key returns the entry's (entity type, identifier) pair.
func (e IDEntry) Key() Key {
	return Key{EntityType: e.EntityType, Identifier: e.Identifier}
}

// Translation is one localized value of a translatable field.
type Translation struct {
	StatusID int64  `json:"status_id"`
	Locale   string `json:"locale"`
	Field    string `json:"field"`
	Value    string `json:"value"`
}

// Page is one page of a listing ordered by latest id first.
type Page struct {
	Records []*Record `json:"data"`
	Page    int       `json:"current_page"`
	PerPage int       `json:"per_page"`
	Total   int       `json:"total"`
}

// LastPage returns the number of the final page, at least 1.
func (p Page) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}
