package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/lorrc/liveops/internal/adapters/primary/http/middleware"
	"github.com/lorrc/liveops/internal/auth"
	"github.com/lorrc/liveops/internal/core/domain"
)

// PermissionsResponse defines the JSON response for operator permissions.
type PermissionsResponse struct {
	Role        domain.Role          `json:"role"`
	Permissions domain.PermissionSet `json:"permissions"`
}

// MeHandler handles HTTP requests for the authenticated operator.
type MeHandler struct {
	logger *slog.Logger
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(logger *slog.Logger) *MeHandler {
	return &MeHandler{
		logger: logger.With("handler", "me"),
	}
}

// RegisterRoutes registers the /me routes.
func (h *MeHandler) RegisterRoutes(r chi.Router) {
	r.Get("/permissions", h.HandlePermissions)
}

// HandlePermissions handles GET /me/permissions.
func (h *MeHandler) HandlePermissions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	role := claims.EffectiveRole()
	WriteJSON(w, http.StatusOK, PermissionsResponse{
		Role:        role,
		Permissions: domain.PermissionsFor(role),
	})
}

// requireClaims extracts user claims from the request context, writing a
// 401 when they are missing.
func requireClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := mw.GetClaims(r.Context())
	if !ok {
		WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error: "Not authorized",
			Code:  "UNAUTHORIZED",
		})
		return nil, false
	}
	return claims, true
}

// permissionsOf resolves the capabilities of the request's operator.
func permissionsOf(claims *auth.Claims) domain.PermissionSet {
	return domain.PermissionsFor(claims.EffectiveRole())
}
