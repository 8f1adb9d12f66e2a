package statusful_test

//go:generate mockgen -source=statusful.go -destination=mocks/mocks.go -package=mocks Notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"statusable/internal/status/cache"
	"statusable/internal/status/metrics"
	"statusable/internal/status/registry"
	"statusable/internal/status/statusful"
	"statusable/internal/status/statusful/mocks"
	"statusable/internal/status/store"
	"statusable/internal/status/translation"
	"statusable/pkg/platform/tx"
)

type invoice struct {
	statusful.Column
	Number string
}

func (*invoice) EntityType() string { return "Invoice" }

func (*invoice) StatusIdentifiers() []string { return []string{"open", "paid", "overdue"} }

// =============================================================================
// Manager Test Suite
// =============================================================================
// Justification for unit tests: the manager decides when a save announces a
// status change. Tests pin dirty tracking, error isolation and the silent mode.

type ManagerSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	metrics  *metrics.Metrics
	registry *registry.Registry
	manager  *statusful.Manager
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.registry = registry.New(
		store.NewInMemoryStore(),
		cache.NewInMemoryIndexCache(),
		translation.NewInMemoryStore("en"),
		registry.DefaultConfig(),
	)
	s.ctx = registry.WithScope(context.Background(), s.registry.NewScope("en"))
	s.manager = statusful.NewManager(s.registry, s.notifier,
		statusful.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		statusful.WithMetrics(s.metrics),
	)
}

func (s *ManagerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func persistOK(context.Context) error { return nil }

func (s *ManagerSuite) TestSetStatusAndStatusIs() {
	inv := &invoice{Number: "INV-1"}
	s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "open"))
	s.NotZero(inv.StatusID())
	s.True(inv.StatusChanged())

	is, err := s.manager.StatusIs(s.ctx, inv, "open")
	s.Require().NoError(err)
	s.True(is)

	is, err = s.manager.StatusIs(s.ctx, inv, "paid")
	s.Require().NoError(err)
	s.False(is)

	s.Equal("open", s.manager.Identifier(s.ctx, inv))
	s.Equal("Open", s.manager.Name(s.ctx, inv))
}

func (s *ManagerSuite) TestSaveNotifiesOnlyWhenDirty() {
	s.Run("unchanged status does not notify", func() {
		inv := &invoice{}
		inv.LoadStatusID(1)
		s.Require().NoError(s.manager.Save(s.ctx, inv, persistOK))
	})

	s.Run("changed status notifies once", func() {
		inv := &invoice{}
		s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "paid"))
		s.notifier.EXPECT().StatusChanged(gomock.Any(), inv).Return(nil).Times(1)

		s.Require().NoError(s.manager.Save(s.ctx, inv, persistOK))
		s.False(inv.StatusChanged())

		s.Require().NoError(s.manager.Save(s.ctx, inv, persistOK))
	})

	s.Run("setting the same status is not a change", func() {
		inv := &invoice{}
		s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "paid"))
		inv.MarkStatusPersisted()
		s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "paid"))
		s.Require().NoError(s.manager.Save(s.ctx, inv, persistOK))
	})
}

func (s *ManagerSuite) TestSaveErrors() {
	s.Run("persistence error is returned and nothing is announced", func() {
		inv := &invoice{}
		s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "open"))
		boom := errors.New("write failed")

		err := s.manager.Save(s.ctx, inv, func(context.Context) error { return boom })
		s.ErrorIs(err, boom)
		s.True(inv.StatusChanged(), "status stays dirty after a failed save")
	})

	s.Run("notification failure does not fail the save", func() {
		inv := &invoice{}
		s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "overdue"))
		s.notifier.EXPECT().StatusChanged(gomock.Any(), inv).Return(errors.New("bus down"))

		s.Require().NoError(s.manager.Save(s.ctx, inv, persistOK))
		s.Equal(1.0, testutil.ToFloat64(s.metrics.NotificationFailures.WithLabelValues("event")))
	})
}

func (s *ManagerSuite) TestRolledBackSaveStaysDirty() {
	runner := tx.NewInMemoryRunner()
	inv := &invoice{}
	inv.LoadStatusID(1)
	s.Require().NoError(s.manager.SetStatus(s.ctx, inv, "paid"))

	s.notifier.EXPECT().StatusChanged(gomock.Any(), inv).Return(nil).Times(2)
	boom := errors.New("commit refused")
	err := runner.RunInTx(s.ctx, func(ctx context.Context) error {
		s.Require().NoError(s.manager.Save(ctx, inv, persistOK))
		s.False(inv.StatusChanged())
		return boom
	})
	s.Require().ErrorIs(err, boom)
	s.True(inv.StatusChanged(), "rollback restores the persisted status")

	err = runner.RunInTx(s.ctx, func(ctx context.Context) error {
		return s.manager.Save(ctx, inv, persistOK)
	})
	s.Require().NoError(err)
	s.False(inv.StatusChanged())
}

func (s *ManagerSuite) TestWithoutStatusEvents() {
	silent := s.manager.WithoutStatusEvents()
	inv := &invoice{}
	s.Require().NoError(silent.UpdateStatus(s.ctx, inv, "paid", persistOK))
	s.False(inv.StatusChanged())

	s.notifier.EXPECT().StatusChanged(gomock.Any(), inv).Return(nil)
	s.Require().NoError(s.manager.UpdateStatus(s.ctx, inv, "overdue", persistOK))
}
