package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// MetricsHandler serves cached dashboard views.
type MetricsHandler struct {
	cache        ports.QueryCache
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(
	cache ports.QueryCache,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *MetricsHandler {
	return &MetricsHandler{
		cache:        cache,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "metrics"),
	}
}

// RegisterRoutes registers the /metrics routes.
func (h *MetricsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleListViews)
	r.Get("/{view}", h.HandleGetView)
}

// HandleListViews handles GET /metrics, listing the views the caller may read.
func (h *MetricsHandler) HandleListViews(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	canViewCosts := permissionsOf(claims).CanViewCosts
	views := make([]domain.DashboardView, 0, len(domain.AllViews()))
	for _, v := range domain.AllViews() {
		if v == domain.ViewCosts && !canViewCosts {
			continue
		}
		views = append(views, v)
	}
	WriteList(w, views)
}

// HandleGetView handles GET /metrics/{view}.
func (h *MetricsHandler) HandleGetView(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	view := domain.DashboardView(chi.URLParam(r, "view"))
	if !view.IsValid() {
		h.errorHandler.Handle(w, r, apperrors.ErrUnknownView)
		return
	}
	if view == domain.ViewCosts && !permissionsOf(claims).CanViewCosts {
		h.errorHandler.Handle(w, r, apperrors.ErrForbidden)
		return
	}

	data, err := h.cache.Get(r.Context(), view)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write metrics view", "view", view, "error", err)
	}
}
