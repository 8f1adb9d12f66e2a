package notifier

import "statusable/internal/status/statusful"

// EventStatusChanged is the name of the generic change event.
const EventStatusChanged = "status.changed"

// StatusChanged is dispatched for every persisted status change.
type StatusChanged struct {
	Entity     statusful.Statusful
	StatusID   int64
	Identifier string
}

func (e *StatusChanged) EventName() string { return EventStatusChanged }
