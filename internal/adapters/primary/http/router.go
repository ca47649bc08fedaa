package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/lorrc/liveops/internal/adapters/primary/http/middleware"
	"github.com/lorrc/liveops/internal/auth"
)

// RouterConfig collects the handlers and middleware mounted by NewRouter.
// Nil rate limiters disable limiting; a nil WebSocket handler leaves /ws
// unmounted.
type RouterConfig struct {
	AllowedOrigins []string
	TokenManager   *auth.TokenManager
	Logger         *slog.Logger

	GeneralLimiter *mw.RateLimiter
	CallLimiter    *mw.RateLimiter

	Health    *HealthHandler
	Me        *MeHandler
	LiveCalls *LiveCallHandler
	Realtime  *RealtimeHandler
	Metrics   *MetricsHandler
	Call      *CallHandler
	Fields    *FieldHandler
	WebSocket *WebSocketHandler
}

// NewRouter builds the console API.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(cfg.Logger))
	r.Use(mw.RecoveryLogger(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.GeneralLimiter != nil {
		r.Use(cfg.GeneralLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	if cfg.Health != nil {
		cfg.Health.RegisterRoutes(r)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(cfg.TokenManager))

			if cfg.WebSocket != nil {
				r.Get("/ws", cfg.WebSocket.ServeHTTP)
			}

			r.Route("/me", cfg.Me.RegisterRoutes)
			r.Route("/live-calls", cfg.LiveCalls.RegisterRoutes)
			r.Route("/realtime", cfg.Realtime.RegisterRoutes)
			r.Route("/metrics", cfg.Metrics.RegisterRoutes)
			r.Route("/fields", cfg.Fields.RegisterRoutes)

			var callLimit func(http.Handler) http.Handler
			if cfg.CallLimiter != nil {
				callLimit = cfg.CallLimiter.KeyedMiddleware(mw.UserKey)
			}
			r.Route("/call", func(r chi.Router) {
				cfg.Call.RegisterRoutes(r, callLimit)
			})
		})
	})

	return r
}
