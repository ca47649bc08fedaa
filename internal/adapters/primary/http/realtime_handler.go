package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// SubscribeRequest is the body of POST /realtime/subscriptions.
type SubscribeRequest struct {
	Room   string                 `json:"room"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// RealtimeHandler exposes the event server connection.
type RealtimeHandler struct {
	transport    ports.RealtimeTransport
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(
	transport ports.RealtimeTransport,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *RealtimeHandler {
	return &RealtimeHandler{
		transport:    transport,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "realtime"),
	}
}

// RegisterRoutes registers the /realtime routes.
func (h *RealtimeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.HandleStatus)
	r.Post("/subscriptions", h.HandleSubscribe)
	r.Post("/organizations/{id}", h.HandleSubscribeOrganization)
}

// HandleStatus handles GET /realtime/status.
func (h *RealtimeHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.transport.Status())
}

// HandleSubscribe handles POST /realtime/subscriptions. While disconnected
// the join is dropped by the transport; the response carries the status
// so the caller can tell.
func (h *RealtimeHandler) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	req.Room = strings.TrimSpace(req.Room)
	if req.Room == "" {
		verrs := apperrors.NewValidationErrors()
		verrs.Add("room", "room is required")
		h.errorHandler.Handle(w, r, verrs)
		return
	}

	h.transport.Subscribe(req.Room, req.Params)
	WriteJSON(w, http.StatusAccepted, h.transport.Status())
}

// HandleSubscribeOrganization handles POST /realtime/organizations/{id}.
func (h *RealtimeHandler) HandleSubscribeOrganization(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "organization id is required"))
		return
	}

	h.transport.SubscribeToOrganization(id)
	WriteJSON(w, http.StatusAccepted, h.transport.Status())
}
