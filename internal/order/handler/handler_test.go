package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statusable/internal/order/models"
	"statusable/internal/order/service"
	"statusable/internal/order/store"
	"statusable/internal/status/cache"
	"statusable/internal/status/notifier"
	"statusable/internal/status/registry"
	"statusable/internal/status/statusful"
	statusstore "statusable/internal/status/store"
	"statusable/internal/status/translation"
	"statusable/pkg/platform/tx"
	"statusable/pkg/testutil"
)

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(
		statusstore.NewInMemoryStore(),
		cache.NewInMemoryIndexCache(),
		translation.NewInMemoryStore("en"),
		registry.DefaultConfig(),
	)
	bus := notifier.NewBus(logger)
	manager := statusful.NewManager(reg, notifier.New(reg, bus, notifier.NewLogBroadcaster(logger)))
	svc := service.New(store.NewInMemoryStore(), manager, tx.NewInMemoryRunner(), service.WithLogger(logger))

	r := chi.NewRouter()
	New(svc, reg.ScopePerRequest, logger, nil).Register(r)
	return r
}

type orderResponse struct {
	ID               string `json:"id"`
	Reference        string `json:"reference"`
	StatusIdentifier string `json:"status_identifier"`
	Status           string `json:"status"`
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	r := newRouter(t)

	rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPost, "/orders", map[string]string{"reference": "A-1"}))
	require.Equal(t, http.StatusCreated, rr.Code)
	placed := testutil.UnmarshalResponse[orderResponse](t, rr)
	assert.Equal(t, models.StatusPlaced, placed.StatusIdentifier)
	assert.Equal(t, "Placed", placed.Status)

	rr = testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodPatch, "/orders/"+placed.ID+"/status", map[string]string{"status": "paid"}))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = testutil.DoRequest(r, testutil.NewJSONRequest(t, http.MethodGet, "/orders/"+placed.ID, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	got := testutil.UnmarshalResponse[orderResponse](t, rr)
	assert.Equal(t, models.StatusPaid, got.StatusIdentifier)
	assert.Equal(t, "Paid", got.Status)
	assert.Equal(t, "A-1", got.Reference)
}

func TestOrderErrorsOverHTTP(t *testing.T) {
	r := newRouter(t)
	const unknown = "/orders/6f1c2d8e-1111-4b5b-9f3e-1d2c3b4a5f60"

	tests := []struct {
		name       string
		method     string
		target     string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"missing reference", http.MethodPost, "/orders", map[string]string{}, http.StatusBadRequest, "validation_error"},
		{"bad id", http.MethodGet, "/orders/nope", nil, http.StatusBadRequest, "bad_request"},
		{"unknown order", http.MethodGet, unknown, nil, http.StatusNotFound, "not_found"},
		{"unknown status", http.MethodPatch, unknown + "/status", map[string]string{"status": "lost"}, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := testutil.DoRequest(r, testutil.NewJSONRequest(t, tt.method, tt.target, tt.body))
			testutil.AssertStatusAndError(t, rr, tt.wantStatus, tt.wantCode)
		})
	}
}
