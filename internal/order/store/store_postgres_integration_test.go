//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"statusable/internal/order/models"
	"statusable/internal/order/store"
	statusstore "statusable/internal/status/store"
	"statusable/pkg/platform/sentinel"
	"statusable/pkg/testutil/containers"
)

type OrderPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	statuses *statusstore.PostgresStore
}

func TestOrderPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OrderPostgresSuite))
}

func (s *OrderPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.statuses = statusstore.NewPostgres(s.postgres.DB)
}

func (s *OrderPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "orders", "status_translations", "statuses"))
}

func (s *OrderPostgresSuite) TestRoundTripMarksStatusPersisted() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	placed, err := s.statuses.Insert(ctx, models.EntityType, models.StatusPlaced, now)
	s.Require().NoError(err)
	paid, err := s.statuses.Insert(ctx, models.EntityType, models.StatusPaid, now)
	s.Require().NoError(err)

	o := &models.Order{ID: uuid.New(), Reference: "R-7", CreatedAt: now, UpdatedAt: now}
	o.SetStatusID(placed.ID)
	s.Require().NoError(s.store.Create(ctx, o))
	s.ErrorIs(s.store.Create(ctx, o), sentinel.ErrConflict)

	got, err := s.store.FindByID(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(placed.ID, got.StatusID())
	s.False(got.StatusChanged())

	got.SetStatusID(paid.ID)
	s.True(got.StatusChanged())
	s.Require().NoError(s.store.Update(ctx, got))

	again, err := s.store.FindByID(ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(paid.ID, again.StatusID())

	_, err = s.store.FindByID(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(ctx, &models.Order{ID: uuid.New()}), sentinel.ErrNotFound)
}
