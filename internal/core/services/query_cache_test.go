package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/mocks"
	"github.com/lorrc/liveops/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryCache_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("caches until invalidated", func(t *testing.T) {
		api := mocks.NewMockMetricsAPI()
		api.On("FetchView", mock.Anything, domain.ViewCalls).Return(json.RawMessage(`{"total":1}`), nil).Twice()

		cache := services.NewQueryCache(api, 0, discardLogger())

		data, err := cache.Get(ctx, domain.ViewCalls)
		require.NoError(t, err)
		assert.JSONEq(t, `{"total":1}`, string(data))

		_, err = cache.Get(ctx, domain.ViewCalls)
		require.NoError(t, err)
		api.AssertNumberOfCalls(t, "FetchView", 1)

		cache.Invalidate(domain.ViewCalls)
		assert.True(t, cache.IsStale(domain.ViewCalls))

		_, err = cache.Get(ctx, domain.ViewCalls)
		require.NoError(t, err)
		api.AssertNumberOfCalls(t, "FetchView", 2)
		api.AssertExpectations(t)
	})

	t.Run("unknown view", func(t *testing.T) {
		api := mocks.NewMockMetricsAPI()
		cache := services.NewQueryCache(api, 0, discardLogger())

		_, err := cache.Get(ctx, domain.DashboardView("weather"))
		assert.ErrorIs(t, err, apperrors.ErrUnknownView)
		api.AssertNotCalled(t, "FetchView", mock.Anything, mock.Anything)
	})

	t.Run("fetch error is returned and not cached", func(t *testing.T) {
		api := mocks.NewMockMetricsAPI()
		api.On("FetchView", mock.Anything, domain.ViewSystem).Return(nil, errors.New("bad gateway")).Once()
		api.On("FetchView", mock.Anything, domain.ViewSystem).Return(json.RawMessage(`{"ok":true}`), nil).Once()

		cache := services.NewQueryCache(api, 0, discardLogger())

		_, err := cache.Get(ctx, domain.ViewSystem)
		assert.EqualError(t, err, "bad gateway")

		data, err := cache.Get(ctx, domain.ViewSystem)
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(data))
	})

	t.Run("concurrent reads share one fetch", func(t *testing.T) {
		release := make(chan time.Time)
		api := mocks.NewMockMetricsAPI()
		api.On("FetchView", mock.Anything, domain.ViewOverview).
			WaitUntil(release).
			Return(json.RawMessage(`{"n":1}`), nil)

		cache := services.NewQueryCache(api, time.Minute, discardLogger())

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := cache.Get(ctx, domain.ViewOverview)
				assert.NoError(t, err)
			}()
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		api.AssertNumberOfCalls(t, "FetchView", 1)
	})
}

func TestQueryCache_OnInvalidate(t *testing.T) {
	cache := services.NewQueryCache(mocks.NewMockMetricsAPI(), 0, discardLogger())

	var got [][]domain.DashboardView
	cancel := cache.OnInvalidate(func(views []domain.DashboardView) {
		got = append(got, views)
	})

	cache.Invalidate(domain.ViewTickets, domain.ViewOverview)
	cancel()
	cache.Invalidate(domain.ViewDevices)

	require.Len(t, got, 1)
	assert.Equal(t, []domain.DashboardView{domain.ViewTickets, domain.ViewOverview}, got[0])
}

func TestCacheInvalidator(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []domain.DashboardView
	}{
		{"call", `{"type":"call","action":"created"}`, []domain.DashboardView{domain.ViewCalls, domain.ViewOverview}},
		{"ticket", `{"type":"ticket","action":"updated"}`, []domain.DashboardView{domain.ViewTickets, domain.ViewOverview}},
		{"device", `{"type":"device","action":"status_changed"}`, []domain.DashboardView{domain.ViewDevices}},
		{"system", `{"type":"system","action":"updated"}`, []domain.DashboardView{domain.ViewSystem}},
		{"ai ignored", `{"type":"ai","action":"created"}`, nil},
		{"unknown ignored", `{"type":"weather","action":"created"}`, nil},
		{"malformed ignored", `{"type":`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := services.NewDispatcher(discardLogger())
			cache := services.NewQueryCache(mocks.NewMockMetricsAPI(), 0, discardLogger())

			var got []domain.DashboardView
			cache.OnInvalidate(func(views []domain.DashboardView) {
				got = append(got, views...)
			})

			inv := services.NewCacheInvalidator(bus, cache, discardLogger())
			defer inv.Close()

			bus.Emit(domain.EventDashboardUpdate, json.RawMessage(tt.payload))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCacheInvalidator_SubscribesOnce(t *testing.T) {
	bus := services.NewDispatcher(discardLogger())
	cache := services.NewQueryCache(mocks.NewMockMetricsAPI(), 0, discardLogger())

	inv := services.NewCacheInvalidator(bus, cache, discardLogger())
	assert.Equal(t, 1, bus.HandlerCount(domain.EventDashboardUpdate))

	inv.Close()
	assert.Zero(t, bus.HandlerCount(domain.EventDashboardUpdate))
}
