package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ordermodels "statusable/internal/order/models"
	"statusable/internal/platform/config"
	"statusable/internal/platform/logger"
)

func newInMemoryApp(t *testing.T) *App {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Database.URL = ""
	cfg.Redis.URL = ""
	cfg.Kafka.Brokers = nil

	a, err := New(context.Background(), cfg, logger.NewWithWriter(io.Discard, "error", "text"))
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestInMemoryWiring(t *testing.T) {
	a := newInMemoryApp(t)
	router := a.Router()

	report, err := a.Registry.SeedMissingStatuses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(ordermodels.Identifiers()), report.Created())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/statuses?entity_type=Order&per_page=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Data []struct {
			Identifier string `json:"identifier"`
			Name       string `json:"name"`
		} `json:"data"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, len(ordermodels.Identifiers()), page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, ordermodels.StatusCancelled, page.Data[0].Identifier)
	assert.Equal(t, "Cancelled", page.Data[0].Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"reference":"W-1"}`)))
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "statusable_http_requests_total")
}

func TestSecondSeedCreatesNothing(t *testing.T) {
	a := newInMemoryApp(t)
	_, err := a.Registry.SeedMissingStatuses(context.Background())
	require.NoError(t, err)

	report, err := a.Registry.SeedMissingStatuses(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Created())
	assert.Empty(t, report.Failed())
}
