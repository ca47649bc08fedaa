package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
)

// MuteResponse reports the local capture state after a toggle.
type MuteResponse struct {
	Muted bool `json:"muted"`
}

// SpeakerResponse reports the remote audio state after a toggle.
type SpeakerResponse struct {
	SpeakerEnabled bool `json:"speakerEnabled"`
}

// CallHandler controls the local outbound voice session.
type CallHandler struct {
	signaling    ports.SignalingService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewCallHandler creates a new CallHandler.
func NewCallHandler(
	signaling ports.SignalingService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *CallHandler {
	return &CallHandler{
		signaling:    signaling,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "call"),
	}
}

// RegisterRoutes registers the /call routes. limit, when non-nil, wraps
// the routes that start or end a session.
func (h *CallHandler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Get("/", h.HandleGet)
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/start", h.HandleStart)
		r.Post("/hangup", h.HandleHangup)
	})
	r.Post("/mute", h.HandleToggleMute)
	r.Post("/speaker", h.HandleToggleSpeaker)
}

// HandleGet handles GET /call.
func (h *CallHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, h.visible(claims.EffectiveRole()))
}

// HandleStart handles POST /call/start. It returns once the session is
// connected or the attempt has failed.
func (h *CallHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	role := claims.EffectiveRole()
	h.logger.InfoContext(r.Context(), "starting call", "role", role)

	// The session outlives this request; only its values are carried over.
	ctx := context.WithoutCancel(r.Context())
	if err := h.signaling.StartCall(ctx, role); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, h.visible(role))
}

// HandleHangup handles POST /call/hangup. Hanging up an idle session is
// not an error.
func (h *CallHandler) HandleHangup(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	h.signaling.Hangup(context.WithoutCancel(r.Context()))
	h.logger.InfoContext(r.Context(), "call hung up")

	WriteJSON(w, http.StatusOK, h.visible(claims.EffectiveRole()))
}

// HandleToggleMute handles POST /call/mute.
func (h *CallHandler) HandleToggleMute(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireClaims(w, r); !ok {
		return
	}
	WriteJSON(w, http.StatusOK, MuteResponse{Muted: h.signaling.ToggleMute()})
}

// HandleToggleSpeaker handles POST /call/speaker.
func (h *CallHandler) HandleToggleSpeaker(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireClaims(w, r); !ok {
		return
	}
	WriteJSON(w, http.StatusOK, SpeakerResponse{SpeakerEnabled: h.signaling.ToggleSpeaker()})
}

func (h *CallHandler) visible(role domain.Role) domain.CallSnapshot {
	snap := h.signaling.Snapshot()
	if !domain.PermissionsFor(role).CanViewTranscript {
		snap.Transcript = nil
	}
	return snap
}
