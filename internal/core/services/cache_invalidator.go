package services

import (
	"encoding/json"
	"log/slog"

	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
)

// CacheInvalidator marks dashboard views stale when dashboard:update events
// name an entity those views are built from.
type CacheInvalidator struct {
	cache  ports.QueryCache
	sub    ports.Subscription
	logger *slog.Logger
}

// NewCacheInvalidator subscribes to dashboard updates on bus.
func NewCacheInvalidator(bus ports.EventBus, cache ports.QueryCache, logger *slog.Logger) *CacheInvalidator {
	inv := &CacheInvalidator{
		cache:  cache,
		logger: logger.With("component", "cache_invalidator"),
	}
	inv.sub = bus.On(domain.EventDashboardUpdate, inv.handle)
	return inv
}

func (inv *CacheInvalidator) handle(data json.RawMessage) {
	var update domain.DashboardUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		inv.logger.Warn("ignoring malformed dashboard update", "error", err)
		return
	}

	views := domain.InvalidatedViews(update.Type)
	if len(views) == 0 {
		return
	}
	inv.cache.Invalidate(views...)
}

// Close stops listening for dashboard updates.
func (inv *CacheInvalidator) Close() {
	inv.sub.Unsubscribe()
}
