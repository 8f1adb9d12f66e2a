package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"statusable/internal/order/models"
	"statusable/internal/order/store"
	"statusable/internal/status/cache"
	"statusable/internal/status/notifier"
	"statusable/internal/status/registry"
	"statusable/internal/status/statusful"
	statusstore "statusable/internal/status/store"
	"statusable/internal/status/translation"
	dErrors "statusable/pkg/domain-errors"
	"statusable/pkg/platform/tx"
)

type capturedEvent struct {
	name    string
	inTx    bool
	orderID uuid.UUID
}

type captureBroadcaster struct {
	mu   sync.Mutex
	msgs []notifier.BroadcastMessage
}

func (c *captureBroadcaster) Broadcast(_ context.Context, msg notifier.BroadcastMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

// OrderServiceSuite runs orders through the full in-memory status stack.
//
// Justification: orders are the reference statusful entity; these tests pin
// the event timing and broadcast shape an application sees end to end.
type OrderServiceSuite struct {
	suite.Suite
	ctx        context.Context
	registry   *registry.Registry
	service    *Service
	broadcasts *captureBroadcaster

	mu     sync.Mutex
	events []capturedEvent
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceSuite))
}

func (s *OrderServiceSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.events = nil
	s.broadcasts = &captureBroadcaster{}

	s.registry = registry.New(
		statusstore.NewInMemoryStore(),
		cache.NewInMemoryIndexCache(),
		translation.NewInMemoryStore("en"),
		registry.DefaultConfig(),
		registry.WithLogger(logger),
	)
	s.registry.RegisterEntityType(&models.Order{})
	s.ctx = registry.WithScope(context.Background(), s.registry.NewScope("en"))

	bus := notifier.NewBus(logger)
	notifier.NewExecuteStatusEvents(bus, logger, nil).Register()
	bus.Subscribe(models.OrderShipped{}.EventName(), s.capture)
	bus.Subscribe(models.OrderCancelled{}.EventName(), s.capture)

	n := notifier.New(s.registry, bus, s.broadcasts, notifier.WithLogger(logger))
	manager := statusful.NewManager(s.registry, n, statusful.WithLogger(logger))
	s.service = New(store.NewInMemoryStore(), manager, tx.NewInMemoryRunner(), WithLogger(logger))
}

func (s *OrderServiceSuite) capture(ctx context.Context, e statusful.Event) error {
	_, inTx := tx.UnitOfWorkFrom(ctx)
	ev := capturedEvent{name: e.EventName(), inTx: inTx}
	switch v := e.(type) {
	case models.OrderShipped:
		ev.orderID = v.Order.ID
	case models.OrderCancelled:
		ev.orderID = v.Order.ID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *OrderServiceSuite) captured() []capturedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]capturedEvent(nil), s.events...)
}

func (s *OrderServiceSuite) TestPlace() {
	view, err := s.service.Place(s.ctx, " A-100 ")
	s.Require().NoError(err)
	s.Equal("A-100", view.Reference)
	s.Equal(models.StatusPlaced, view.StatusIdentifier)
	s.Equal("Placed", view.Status)
	s.NotZero(view.StatusID)
	s.Empty(s.captured(), "placed has no mapped event")
	s.Empty(s.broadcasts.msgs)

	_, err = s.service.Place(s.ctx, "  ")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *OrderServiceSuite) TestShippingRaisesEventAfterCommitAndBroadcasts() {
	placed, err := s.service.Place(s.ctx, "A-101")
	s.Require().NoError(err)

	shipped, err := s.service.Transition(s.ctx, placed.ID, models.StatusShipped)
	s.Require().NoError(err)
	s.Equal(models.StatusShipped, shipped.StatusIdentifier)
	s.Equal("Shipped", shipped.Status)

	events := s.captured()
	s.Require().Len(events, 1)
	s.Equal("order.shipped", events[0].name)
	s.False(events[0].inTx)
	s.Equal(placed.ID, events[0].orderID)

	s.Require().Len(s.broadcasts.msgs, 1)
	msg := s.broadcasts.msgs[0]
	s.Equal("private-orders", msg.Channel)
	s.Equal("order.shipped", msg.Event)
	s.Contains(msg.Payload, "order")

	again, err := s.service.Transition(s.ctx, placed.ID, models.StatusShipped)
	s.Require().NoError(err)
	s.Equal(shipped.StatusID, again.StatusID)
	s.Len(s.captured(), 1, "same status announces nothing")
	s.Len(s.broadcasts.msgs, 1)
}

func (s *OrderServiceSuite) TestCancellationIsDispatchedInsideTheTransaction() {
	placed, err := s.service.Place(s.ctx, "A-102")
	s.Require().NoError(err)

	_, err = s.service.Transition(s.ctx, placed.ID, models.StatusCancelled)
	s.Require().NoError(err)

	events := s.captured()
	s.Require().Len(events, 1)
	s.Equal("order.cancelled", events[0].name)
	s.True(events[0].inTx)
	s.Empty(s.broadcasts.msgs)
}

func (s *OrderServiceSuite) TestTransitionErrors() {
	_, err := s.service.Transition(s.ctx, uuid.New(), models.StatusPaid)
	s.True(dErrors.Is(err, dErrors.CodeNotFound))

	placed, err := s.service.Place(s.ctx, "A-103")
	s.Require().NoError(err)
	_, err = s.service.Transition(s.ctx, placed.ID, "lost")
	s.True(dErrors.Is(err, dErrors.CodeValidation))
}

func (s *OrderServiceSuite) TestGetResolvesLocalizedName() {
	placed, err := s.service.Place(s.ctx, "A-104")
	s.Require().NoError(err)

	ctx := registry.WithScope(context.Background(), s.registry.NewScope("fr"))
	view, err := s.service.Get(ctx, placed.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusPlaced, view.StatusIdentifier)
	s.Equal("Placed", view.Status, "falls back to the default locale")
	s.WithinDuration(time.Now(), view.CreatedAt, time.Minute)
}
