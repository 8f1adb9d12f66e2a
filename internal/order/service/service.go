package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"statusable/internal/order/models"
	"statusable/internal/status/statusful"
	dErrors "statusable/pkg/domain-errors"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/platform/tx"
	"statusable/pkg/requestcontext"
)

// Store persists orders.
type Store interface {
	Create(ctx context.Context, o *models.Order) error
	Update(ctx context.Context, o *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Service places orders and moves them through their statuses.
type Service struct {
	orders   Store
	statuses *statusful.Manager
	tx       tx.Runner
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New constructs a Service.
func New(orders Store, statuses *statusful.Manager, runner tx.Runner, opts ...Option) *Service {
	s := &Service{orders: orders, statuses: statuses, tx: runner}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Place creates an order in the placed status.
func (s *Service) Place(ctx context.Context, reference string) (*models.View, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reference is required")
	}

	now := s.timestamp(ctx)
	order := &models.Order{ID: uuid.New(), Reference: reference, CreatedAt: now, UpdatedAt: now}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		return s.statuses.UpdateStatus(txCtx, order, models.StatusPlaced, func(ctx context.Context) error {
			return s.orders.Create(ctx, order)
		})
	})
	if err != nil {
		return nil, s.wrap(ctx, err, "failed to place order")
	}

	s.logger.InfoContext(ctx, "order placed",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", order.ID,
	)
	return s.view(ctx, order), nil
}

// Transition moves an order to identifier. Moving to the current status
// saves without announcing anything.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, identifier string) (*models.View, error) {
	identifier = strings.TrimSpace(identifier)
	if !slices.Contains(models.Identifiers(), identifier) {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown order status")
	}

	var order *models.Order
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		order, err = s.orders.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		order.UpdatedAt = s.timestamp(txCtx)
		return s.statuses.UpdateStatus(txCtx, order, identifier, func(ctx context.Context) error {
			return s.orders.Update(ctx, order)
		})
	})
	if err != nil {
		return nil, s.wrap(ctx, err, "failed to update order status")
	}

	s.logger.InfoContext(ctx, "order status updated",
		"request_id", requestcontext.RequestID(ctx),
		"order_id", id,
		"status", identifier,
	)
	return s.view(ctx, order), nil
}

// Get returns an order with its status resolved in the request locale.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.View, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, s.wrap(ctx, err, "failed to load order")
	}
	return s.view(ctx, order), nil
}

// timestamp prefers the clock option, then the request's pinned time.
func (s *Service) timestamp(ctx context.Context) time.Time {
	if s.now != nil {
		return s.now()
	}
	return requestcontext.Now(ctx)
}

func (s *Service) view(ctx context.Context, o *models.Order) *models.View {
	return &models.View{
		Order:            o,
		StatusID:         o.StatusID(),
		StatusIdentifier: s.statuses.Identifier(ctx, o),
		Status:           s.statuses.Name(ctx, o),
	}
}

func (s *Service) wrap(ctx context.Context, err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	}
	var de *dErrors.Error
	if errors.As(err, &de) && de.Code != dErrors.CodeInternal {
		return err
	}
	s.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	)
	if de != nil {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
