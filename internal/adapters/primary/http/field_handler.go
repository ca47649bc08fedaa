package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// FieldValueRequest carries a field value or suggestion.
type FieldValueRequest struct {
	Value string `json:"value"`
}

// FieldHandler serves persisted operator input fields.
type FieldHandler struct {
	fields       ports.FieldStore
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewFieldHandler creates a new FieldHandler.
func NewFieldHandler(
	fields ports.FieldStore,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *FieldHandler {
	return &FieldHandler{
		fields:       fields,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "fields"),
	}
}

// RegisterRoutes registers the /fields routes.
func (h *FieldHandler) RegisterRoutes(r chi.Router) {
	r.Route("/{key}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleSetValue)
		r.Delete("/", h.HandleClear)
		r.Post("/commit", h.HandleCommit)
		r.Get("/suggestions", h.HandleListSuggestions)
		r.Post("/suggestions", h.HandleAddSuggestion)
		r.Delete("/suggestions", h.HandleRemoveSuggestion)
	})
}

// HandleGet handles GET /fields/{key}.
func (h *FieldHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	state, err := h.fields.State(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// HandleSetValue handles PUT /fields/{key}.
func (h *FieldHandler) HandleSetValue(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeValue(w, r, false)
	if !ok {
		return
	}

	state, err := h.fields.SetValue(r.Context(), chi.URLParam(r, "key"), req.Value)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// HandleClear handles DELETE /fields/{key}. Suggestions are kept.
func (h *FieldHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	state, err := h.fields.ClearValue(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// HandleCommit handles POST /fields/{key}/commit.
func (h *FieldHandler) HandleCommit(w http.ResponseWriter, r *http.Request) {
	state, err := h.fields.Commit(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// HandleListSuggestions handles GET /fields/{key}/suggestions.
func (h *FieldHandler) HandleListSuggestions(w http.ResponseWriter, r *http.Request) {
	state, err := h.fields.State(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteList(w, state.Suggestions)
}

// HandleAddSuggestion handles POST /fields/{key}/suggestions.
func (h *FieldHandler) HandleAddSuggestion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeValue(w, r, false)
	if !ok {
		return
	}

	state, err := h.fields.AddToSuggestions(r.Context(), chi.URLParam(r, "key"), req.Value)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

// HandleRemoveSuggestion handles DELETE /fields/{key}/suggestions. The
// value may be sent as a body or as the "value" query parameter.
func (h *FieldHandler) HandleRemoveSuggestion(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeValue(w, r, true)
	if !ok {
		return
	}
	if req.Value == "" {
		req.Value = r.URL.Query().Get("value")
	}

	state, err := h.fields.RemoveSuggestion(r.Context(), chi.URLParam(r, "key"), req.Value)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

func (h *FieldHandler) decodeValue(w http.ResponseWriter, r *http.Request, allowEmpty bool) (FieldValueRequest, bool) {
	var req FieldValueRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	if errors.Is(err, io.EOF) && allowEmpty {
		return req, true
	}
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return req, false
	}
	return req, true
}
