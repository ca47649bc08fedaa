package services_test

import (
	"encoding/json"
	"testing"

	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/mocks"
	"github.com/lorrc/liveops/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func broadcastEvents(m *mocks.MockEventBroadcaster) []domain.HubEvent {
	var events []domain.HubEvent
	for _, call := range m.Calls {
		events = append(events, call.Arguments.Get(0).(domain.HubEvent))
	}
	return events
}

func TestRoomForEvent(t *testing.T) {
	cases := map[string]string{
		domain.EventDashboardUpdate: domain.RoomDashboard,
		domain.EventCallUpdate:      domain.RoomCalls,
		domain.EventCallEnd:         domain.RoomCalls,
		domain.EventLiveCallsUpdate: domain.RoomCalls,
		domain.EventAIResponse:      domain.RoomCalls,
		domain.EventTicketUpdate:    domain.RoomTickets,
		domain.EventOrgUpdate:       domain.RoomOrganization,
		"device:update":             "",
		"nocolon":                   "",
	}
	for category, room := range cases {
		assert.Equal(t, room, services.RoomForEvent(category), category)
	}
}

func TestBridge_ForwardsRealtimeEvents(t *testing.T) {
	bus := services.NewDispatcher(discardLogger())
	out := mocks.NewMockEventBroadcaster()
	out.On("Broadcast", mock.Anything).Return(nil)

	bridge := services.NewBridge(bus, out, nil, nil, nil, discardLogger())

	bus.Emit(domain.EventTicketUpdate, json.RawMessage(`{"id":42}`))

	events := broadcastEvents(out)
	require.Len(t, events, 1)
	assert.Equal(t, domain.HubEventRealtime, events[0].Type)
	assert.Equal(t, domain.EventTicketUpdate, events[0].Event)
	assert.Equal(t, domain.RoomTickets, events[0].Room)
	assert.JSONEq(t, `{"id":42}`, string(events[0].Payload.(json.RawMessage)))

	bridge.Close()
	bus.Emit(domain.EventTicketUpdate, json.RawMessage(`{"id":43}`))
	assert.Len(t, broadcastEvents(out), 1)
	assert.Equal(t, 0, bus.HandlerCount(domain.EventTicketUpdate))
}

func TestBridge_ForwardsRegistryAndCache(t *testing.T) {
	bus := services.NewDispatcher(discardLogger())
	registry := services.NewLiveCallRegistry(bus, discardLogger())
	t.Cleanup(registry.Close)

	cache := services.NewQueryCache(mocks.NewMockMetricsAPI(), 0, discardLogger())
	invalidator := services.NewCacheInvalidator(bus, cache, discardLogger())
	t.Cleanup(invalidator.Close)

	out := mocks.NewMockEventBroadcaster()
	out.On("Broadcast", mock.Anything).Return(nil)

	bridge := services.NewBridge(bus, out, registry, cache, nil, discardLogger())
	t.Cleanup(bridge.Close)

	bus.Emit(domain.EventCallUpdate, json.RawMessage(`{"id":"A","status":"ringing"}`))
	bus.Emit(domain.EventDashboardUpdate, json.RawMessage(`{"type":"call","action":"created"}`))

	var liveCalls, invalidations, realtime int
	for _, ev := range broadcastEvents(out) {
		switch ev.Type {
		case domain.HubEventLiveCalls:
			liveCalls++
			assert.Equal(t, domain.RoomCalls, ev.Room)
			snap := ev.Payload.(domain.LiveCallsSnapshot)
			require.Len(t, snap.Calls, 1)
			assert.Equal(t, "A", snap.Calls[0].ID)
		case domain.HubEventInvalidate:
			invalidations++
			assert.Equal(t, domain.RoomDashboard, ev.Room)
			assert.ElementsMatch(t, []domain.DashboardView{domain.ViewCalls, domain.ViewOverview}, ev.Payload)
		case domain.HubEventRealtime:
			realtime++
		}
	}
	assert.Equal(t, 1, liveCalls)
	assert.Equal(t, 1, invalidations)
	assert.Equal(t, 2, realtime)
}

func TestBridge_ForwardsCallState(t *testing.T) {
	bus := services.NewDispatcher(discardLogger())
	out := mocks.NewMockEventBroadcaster()
	out.On("Broadcast", mock.Anything).Return(nil)

	client := services.NewSignalingClient(nil, nil, nil, nil, services.DefaultSignalingConfig(), discardLogger())
	bridge := services.NewBridge(bus, out, nil, nil, client, discardLogger())
	t.Cleanup(bridge.Close)

	client.ToggleMute()

	events := broadcastEvents(out)
	require.Len(t, events, 1)
	assert.Equal(t, domain.HubEventCallState, events[0].Type)
	assert.Equal(t, domain.RoomVoice, events[0].Room)
	assert.True(t, events[0].Payload.(domain.CallSnapshot).Muted)
}
