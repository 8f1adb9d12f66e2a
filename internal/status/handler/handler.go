package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"statusable/internal/platform/metrics"
	platformmw "statusable/internal/platform/middleware"
	"statusable/internal/status/service"
	dErrors "statusable/pkg/domain-errors"
	"statusable/pkg/platform/httputil"
	"statusable/pkg/platform/middleware/auth"
	request "statusable/pkg/platform/middleware/request"
	"statusable/pkg/requestcontext"
)

// Service defines the status read/update operations exposed over HTTP.
type Service interface {
	List(ctx context.Context, q service.ListQuery) (*service.ListResult, error)
	Update(ctx context.Context, id int64, in service.UpdateInput) (*service.View, error)
}

// Handler serves the status endpoints.
type Handler struct {
	logger       *slog.Logger
	statuses     Service
	metrics      *metrics.Metrics
	jwtValidator auth.JWTValidator
}

// New creates a status Handler.
func New(
	statuses Service,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator auth.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		statuses:     statuses,
		metrics:      metrics,
		jwtValidator: jwtValidator,
	}
}

// Register registers the status routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	statusRouter := chi.NewRouter()
	statusRouter.Use(request.Recovery(h.logger))
	statusRouter.Use(request.RequestID)
	statusRouter.Use(request.Logger(h.logger))
	statusRouter.Use(platformmw.Latency(h.metrics))
	statusRouter.Get("/", h.handleList)
	statusRouter.With(auth.RequireAdmin(h.jwtValidator, h.logger)).Patch("/{id}", h.handleUpdate)

	r.Mount("/statuses", statusRouter)
}

// handleList returns one page of statuses, latest first.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	query := r.URL.Query()

	page, err := optionalInt(query.Get("page"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "page must be a positive integer"))
		return
	}
	perPage, err := optionalInt(query.Get("per_page"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "per_page must be a positive integer"))
		return
	}

	res, err := h.statuses.List(ctx, service.ListQuery{
		EntityType: query.Get("entity_type"),
		Page:       page,
		PerPage:    perPage,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list statuses",
			"request_id", requestID,
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleUpdate stores translations of one status for one locale.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid status id"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[UpdateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	view, err := h.statuses.Update(ctx, id, req.input())
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) || dErrors.Is(err, dErrors.CodeValidation) {
			h.logger.WarnContext(ctx, "status update rejected",
				"request_id", requestID,
				"status_id", id,
				"error", err.Error(),
			)
		}
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "status updated",
		"request_id", requestID,
		"status_id", id,
		"actor", requestcontext.ActorID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, view)
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, strconv.ErrSyntax
	}
	return n, nil
}
