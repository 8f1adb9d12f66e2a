package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"statusable/internal/order/models"
	"statusable/internal/platform/metrics"
	platformmw "statusable/internal/platform/middleware"
	dErrors "statusable/pkg/domain-errors"
	"statusable/pkg/platform/httputil"
	request "statusable/pkg/platform/middleware/request"
)

// Service defines the order operations exposed over HTTP.
type Service interface {
	Place(ctx context.Context, reference string) (*models.View, error)
	Transition(ctx context.Context, id uuid.UUID, identifier string) (*models.View, error)
	Get(ctx context.Context, id uuid.UUID) (*models.View, error)
}

// Handler serves the order endpoints.
type Handler struct {
	logger  *slog.Logger
	orders  Service
	metrics *metrics.Metrics
	scope   func(http.Handler) http.Handler
}

// New creates an order Handler. scope opens the per-request status scope.
func New(orders Service, scope func(http.Handler) http.Handler, logger *slog.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{logger: logger, orders: orders, metrics: metrics, scope: scope}
}

// Register registers the order routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	orderRouter := chi.NewRouter()
	orderRouter.Use(request.Recovery(h.logger))
	orderRouter.Use(request.RequestID)
	orderRouter.Use(request.Logger(h.logger))
	orderRouter.Use(platformmw.Latency(h.metrics))
	if h.scope != nil {
		orderRouter.Use(h.scope)
	}
	orderRouter.Post("/", h.handlePlace)
	orderRouter.Get("/{id}", h.handleGet)
	orderRouter.Patch("/{id}/status", h.handleTransition)

	r.Mount("/orders", orderRouter)
}

type placeRequest struct {
	Reference string `json:"reference"`
}

func (r *placeRequest) Validate() error {
	r.Reference = strings.TrimSpace(r.Reference)
	if r.Reference == "" {
		return dErrors.New(dErrors.CodeValidation, "reference is required")
	}
	return nil
}

type transitionRequest struct {
	Status string `json:"status"`
}

func (r *transitionRequest) Validate() error {
	r.Status = strings.TrimSpace(r.Status)
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

func (h *Handler) handlePlace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[placeRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	view, err := h.orders.Place(ctx, req.Reference)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	view, err := h.orders.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[transitionRequest](w, r, h.logger, ctx, request.GetRequestID(ctx))
	if !ok {
		return
	}
	view, err := h.orders.Transition(ctx, id, req.Status)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid order id"))
		return uuid.Nil, false
	}
	return id, true
}
