package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// Selection is the detail-view selection over the live call registry.
type Selection interface {
	Select(id string) bool
	Selected() (domain.LiveCallSession, bool)
	Clear()
}

// SelectionResponse describes the selected call. Call is nil when nothing
// is selected.
type SelectionResponse struct {
	Call *domain.LiveCallSession `json:"call"`
}

// LiveCallHandler serves the live call registry.
type LiveCallHandler struct {
	calls        ports.LiveCallService
	selection    Selection
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewLiveCallHandler creates a new LiveCallHandler.
func NewLiveCallHandler(
	calls ports.LiveCallService,
	selection Selection,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *LiveCallHandler {
	return &LiveCallHandler{
		calls:        calls,
		selection:    selection,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "live_calls"),
	}
}

// RegisterRoutes registers the /live-calls routes.
func (h *LiveCallHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Get("/selection", h.HandleGetSelection)
	r.Delete("/selection", h.HandleClearSelection)
	r.Get("/{id}", h.HandleGet)
	r.Post("/{id}/select", h.HandleSelect)
}

// HandleList handles GET /live-calls.
func (h *LiveCallHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	snap := h.calls.Snapshot()
	if !permissionsOf(claims).CanViewTranscript {
		for i := range snap.Calls {
			snap.Calls[i] = snap.Calls[i].WithoutTranscript()
		}
	}
	if snap.Calls == nil {
		snap.Calls = []domain.LiveCallSession{}
	}
	WriteJSON(w, http.StatusOK, snap)
}

// HandleGet handles GET /live-calls/{id}.
func (h *LiveCallHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	session, found := h.calls.Get(chi.URLParam(r, "id"))
	if !found {
		h.errorHandler.Handle(w, r, apperrors.ErrSessionNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, h.visible(claims.EffectiveRole(), session))
}

// HandleSelect handles POST /live-calls/{id}/select.
func (h *LiveCallHandler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if !h.selection.Select(id) {
		h.errorHandler.Handle(w, r, apperrors.ErrSessionNotFound)
		return
	}
	h.writeSelection(w, claims.EffectiveRole())
}

// HandleGetSelection handles GET /live-calls/selection.
func (h *LiveCallHandler) HandleGetSelection(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	h.writeSelection(w, claims.EffectiveRole())
}

// HandleClearSelection handles DELETE /live-calls/selection.
func (h *LiveCallHandler) HandleClearSelection(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireClaims(w, r); !ok {
		return
	}
	h.selection.Clear()
	WriteNoContent(w)
}

func (h *LiveCallHandler) writeSelection(w http.ResponseWriter, role domain.Role) {
	var resp SelectionResponse
	if session, ok := h.selection.Selected(); ok {
		visible := h.visible(role, session)
		resp.Call = &visible
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *LiveCallHandler) visible(role domain.Role, session domain.LiveCallSession) domain.LiveCallSession {
	if !domain.PermissionsFor(role).CanViewTranscript {
		return session.WithoutTranscript()
	}
	return session
}
