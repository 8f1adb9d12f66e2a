package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose.
type EventCategory string

const (
	// CategoryCompliance covers administrative changes that must be traceable
	// to an actor. These are written fail-closed.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// AuditEvent names an audited action.
type AuditEvent string

const (
	// Status events
	EventStatusTranslated AuditEvent = "status_translated"
	EventStatusesSeeded   AuditEvent = "statuses_seeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventStatusTranslated: CategoryCompliance,
	EventStatusesSeeded:   CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    AuditEvent
	// Subject is the affected resource, e.g. "status:42".
	Subject   string
	ActorID   string
	RequestID string
	ClientIP  string
	UserAgent string
	Details   map[string]string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
