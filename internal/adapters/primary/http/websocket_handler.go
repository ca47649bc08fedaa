package http

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	wsAdapter "github.com/lorrc/liveops/internal/adapters/primary/websocket"
	"github.com/lorrc/liveops/internal/config"
)

// WebSocketHandler upgrades authenticated console connections onto the
// event hub. It is mounted behind JWTMiddleware, which accepts the token
// as a query parameter for browser upgrades.
type WebSocketHandler struct {
	hub      *wsAdapter.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *wsAdapter.Hub, cfg *config.Config, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:    hub,
		logger: logger.With("handler", "websocket"),
	}

	allowed := cfg.WebSocket.AllowedOrigins
	anyOrigin := cfg.IsDevelopment()
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if anyOrigin || originAllowed(origin, allowed) {
				return true
			}
			h.logger.WarnContext(r.Context(), "websocket origin rejected",
				"origin", origin,
				"allowed_origins", allowed,
			)
			return false
		},
	}
	return h
}

// originAllowed matches the Origin header host against allowed hosts.
// "*.example.com" also matches example.com. Requests without an Origin
// come from non-browser clients and are allowed.
func originAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host

	for _, pattern := range allowed {
		if base, ok := strings.CutPrefix(pattern, "*."); ok {
			if host == base || strings.HasSuffix(host, "."+base) {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}

// ServeHTTP handles GET /ws.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}
	role := claims.EffectiveRole()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := wsAdapter.NewClient(h.hub, conn, claims.UserID, role, h.logger)
	if !h.hub.Join(client) {
		h.logger.InfoContext(r.Context(), "hub stopped, refusing console connection")
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		_ = conn.Close()
		return
	}

	h.logger.InfoContext(r.Context(), "console connected",
		"transcripts", client.Permissions.CanViewTranscript,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}
