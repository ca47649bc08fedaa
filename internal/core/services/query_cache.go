package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	data      json.RawMessage
	fetchedAt time.Time
	stale     bool
}

// QueryCache caches metric bundles per dashboard view. Entries stay fresh
// until invalidated or until the TTL elapses; a zero TTL disables expiry.
type QueryCache struct {
	api    ports.MetricsAPI
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	entries     map[domain.DashboardView]*cacheEntry
	generations map[domain.DashboardView]uint64

	listenerMu sync.RWMutex
	listeners  map[int]func([]domain.DashboardView)
	nextID     int
}

var _ ports.QueryCache = (*QueryCache)(nil)

// NewQueryCache creates a cache backed by api.
func NewQueryCache(api ports.MetricsAPI, ttl time.Duration, logger *slog.Logger) *QueryCache {
	return &QueryCache{
		api:         api,
		ttl:         ttl,
		logger:      logger.With("component", "query_cache"),
		now:         time.Now,
		entries:     make(map[domain.DashboardView]*cacheEntry),
		generations: make(map[domain.DashboardView]uint64),
		listeners:   make(map[int]func([]domain.DashboardView)),
	}
}

// Get returns the bundle for view, fetching it when missing or stale.
// Concurrent fetches of one view share a single request.
func (c *QueryCache) Get(ctx context.Context, view domain.DashboardView) (json.RawMessage, error) {
	if !view.IsValid() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownView, view)
	}

	if data, ok := c.fresh(view); ok {
		return data, nil
	}

	ch := c.group.DoChan(string(view), func() (interface{}, error) {
		return c.fetch(context.WithoutCancel(ctx), view)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

func (c *QueryCache) fresh(view domain.DashboardView) (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[view]
	if !ok || e.stale {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.data, true
}

func (c *QueryCache) fetch(ctx context.Context, view domain.DashboardView) (json.RawMessage, error) {
	c.mu.RLock()
	gen := c.generations[view]
	c.mu.RUnlock()

	data, err := c.api.FetchView(ctx, view)
	if err != nil {
		c.logger.Warn("metrics fetch failed", "view", view, "error", err)
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// An invalidation that raced the request leaves the entry stale so the
	// next read refetches.
	c.entries[view] = &cacheEntry{
		data:      data,
		fetchedAt: c.now(),
		stale:     c.generations[view] != gen,
	}
	return data, nil
}

// Invalidate marks views stale and notifies listeners.
func (c *QueryCache) Invalidate(views ...domain.DashboardView) {
	if len(views) == 0 {
		return
	}

	c.mu.Lock()
	for _, v := range views {
		c.generations[v]++
		if e, ok := c.entries[v]; ok {
			e.stale = true
		}
	}
	c.mu.Unlock()

	c.logger.Debug("views invalidated", "views", views)

	c.listenerMu.RLock()
	fns := make([]func([]domain.DashboardView), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(views)
	}
}

// IsStale reports whether view has no fresh cached bundle.
func (c *QueryCache) IsStale(view domain.DashboardView) bool {
	_, ok := c.fresh(view)
	return !ok
}

// OnInvalidate registers fn to be told about invalidated views.
func (c *QueryCache) OnInvalidate(fn func(views []domain.DashboardView)) func() {
	c.listenerMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenerMu.Unlock()

	return func() {
		c.listenerMu.Lock()
		delete(c.listeners, id)
		c.listenerMu.Unlock()
	}
}
