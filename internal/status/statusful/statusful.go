// Package statusful is the capability an entity type implements to carry a
// status, and the Manager that assigns statuses and announces changes.
package statusful

import "context"

// Statusful is an entity with exactly one status column and a closed set of
// identifiers. Embed Column to get the four column methods.
type Statusful interface {
	EntityType() string
	StatusIdentifiers() []string

	StatusID() int64
	SetStatusID(id int64)
	// StatusChanged reports whether the column differs from its last persisted value.
	StatusChanged() bool
	// MarkStatusPersisted records the current value as persisted.
	MarkStatusPersisted()
}

// Event is a domain event raised on a status change.
type Event interface {
	EventName() string
}

// AfterCommitter is implemented by events that choose their dispatch timing.
// Events that do not implement it are dispatched after commit.
type AfterCommitter interface {
	AfterCommit() bool
}

// EventFactory builds the event for an entity that entered a status.
type EventFactory func(entity Statusful) Event

// EventMapper maps identifiers to the one event raised on entering them.
type EventMapper interface {
	StatusEvents() map[string]EventFactory
}

// Broadcastable maps identifiers to the broadcast event name published on
// entering them.
type Broadcastable interface {
	StatusBroadcasts() map[string]string
}

// BroadcastChanneler overrides the default channel of a Broadcastable.
type BroadcastChanneler interface {
	BroadcastChannel() string
}

// BroadcastKeyer overrides the default payload key of a Broadcastable.
type BroadcastKeyer interface {
	BroadcastKey() string
}

// Notifier announces a persisted status change.
type Notifier interface {
	StatusChanged(ctx context.Context, entity Statusful) error
}

// Column implements the status column of Statusful with dirty tracking.
// The zero value is an unsaved entity without status.
type Column struct {
	statusID  int64
	persisted int64
}

func (c *Column) StatusID() int64 { return c.statusID }

func (c *Column) SetStatusID(id int64) { c.statusID = id }

func (c *Column) StatusChanged() bool { return c.statusID != c.persisted }

func (c *Column) MarkStatusPersisted() { c.persisted = c.statusID }

func (c *Column) persistedStatusID() int64 { return c.persisted }

func (c *Column) restorePersistedStatusID(id int64) { c.persisted = id }

// persistence is implemented by Column and lets Save undo
// MarkStatusPersisted when the surrounding transaction rolls back.
type persistence interface {
	persistedStatusID() int64
	restorePersistedStatusID(id int64)
}

// LoadStatusID hydrates the column from storage: current and persisted
// values both become id.
func (c *Column) LoadStatusID(id int64) {
	c.statusID = id
	c.persisted = id
}
