package models

import (
	"time"

	"github.com/google/uuid"

	"statusable/internal/status/statusful"
)

// EntityType is the statusable type name of orders.
const EntityType = "Order"

// Order status identifiers, in lifecycle order.
const (
	StatusPlaced    = "placed"
	StatusPaid      = "paid"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

var identifiers = []string{StatusPlaced, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled}

// Order is a customer order carrying one status.
type Order struct {
	statusful.Column

	ID        uuid.UUID `json:"id"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) EntityType() string { return EntityType }

func (o *Order) StatusIdentifiers() []string { return Identifiers() }

// Identifiers returns a copy of the order status identifiers.
func Identifiers() []string {
	out := make([]string, len(identifiers))
	copy(out, identifiers)
	return out
}

// StatusEvents raises OrderShipped when an order ships and OrderCancelled,
// inside the transaction, when it is cancelled.
func (o *Order) StatusEvents() map[string]statusful.EventFactory {
	return map[string]statusful.EventFactory{
		StatusShipped: func(e statusful.Statusful) statusful.Event {
			return OrderShipped{Order: e.(*Order)}
		},
		StatusCancelled: func(e statusful.Statusful) statusful.Event {
			return OrderCancelled{Order: e.(*Order)}
		},
	}
}

// StatusBroadcasts publishes shipping progress to the order's channel.
func (o *Order) StatusBroadcasts() map[string]string {
	return map[string]string{
		StatusShipped:   "order.shipped",
		StatusDelivered: "order.delivered",
	}
}

// Clone returns a copy of the order, status column included.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

// OrderShipped is dispatched after the shipping transaction commits.
type OrderShipped struct {
	Order *Order
}

func (OrderShipped) EventName() string { return "order.shipped" }

// OrderCancelled is dispatched immediately so listeners can release stock in
// the same transaction.
type OrderCancelled struct {
	Order *Order
}

func (OrderCancelled) EventName() string { return "order.cancelled" }

func (OrderCancelled) AfterCommit() bool { return false }

// View is an order with its resolved status.
type View struct {
	*Order
	StatusID         int64  `json:"status_id"`
	StatusIdentifier string `json:"status_identifier"`
	Status           string `json:"status"`
}
