package services

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
)

// forwardedEvents are the realtime categories relayed to console clients.
var forwardedEvents = []string{
	domain.EventDashboardUpdate,
	domain.EventCallUpdate,
	domain.EventCallEnd,
	domain.EventLiveCallsUpdate,
	domain.EventTicketUpdate,
	domain.EventAIResponse,
	domain.EventOrgUpdate,
}

// RoomForEvent returns the hub room a realtime category is delivered to,
// or an empty string if it is not forwarded.
func RoomForEvent(category string) string {
	prefix, _, ok := strings.Cut(category, ":")
	if !ok {
		return ""
	}
	switch prefix {
	case "dashboard":
		return domain.RoomDashboard
	case "call", "livecalls", "ai":
		return domain.RoomCalls
	case "ticket":
		return domain.RoomTickets
	case "org":
		return domain.RoomOrganization
	}
	return ""
}

// Bridge forwards realtime events, registry snapshots, cache invalidations
// and local call state to the console hub.
type Bridge struct {
	out     ports.EventBroadcaster
	subs    []ports.Subscription
	cancels []func()
	logger  *slog.Logger
}

// NewBridge starts forwarding. calls, cache and signaling may be nil.
func NewBridge(
	bus ports.EventBus,
	out ports.EventBroadcaster,
	calls ports.LiveCallService,
	cache ports.QueryCache,
	signaling ports.SignalingService,
	logger *slog.Logger,
) *Bridge {
	b := &Bridge{
		out:    out,
		logger: logger.With("component", "bridge"),
	}

	for _, category := range forwardedEvents {
		room := RoomForEvent(category)
		b.subs = append(b.subs, bus.On(category, b.forward(category, room)))
	}

	if calls != nil {
		b.cancels = append(b.cancels, calls.Watch(func(snap domain.LiveCallsSnapshot) {
			b.send(domain.HubEvent{Type: domain.HubEventLiveCalls, Payload: snap, Room: domain.RoomCalls})
		}))
	}
	if cache != nil {
		b.cancels = append(b.cancels, cache.OnInvalidate(func(views []domain.DashboardView) {
			b.send(domain.HubEvent{Type: domain.HubEventInvalidate, Payload: views, Room: domain.RoomDashboard})
		}))
	}
	if signaling != nil {
		b.cancels = append(b.cancels, signaling.Watch(func(snap domain.CallSnapshot) {
			b.send(domain.HubEvent{Type: domain.HubEventCallState, Payload: snap, Room: domain.RoomVoice})
		}))
	}
	return b
}

func (b *Bridge) forward(category, room string) ports.EventHandler {
	return func(data json.RawMessage) {
		b.send(domain.HubEvent{
			Type:    domain.HubEventRealtime,
			Event:   category,
			Payload: data,
			Room:    room,
		})
	}
}

func (b *Bridge) send(event domain.HubEvent) {
	if err := b.out.Broadcast(event); err != nil {
		b.logger.Warn("failed to broadcast event",
			"event_type", event.Type,
			"room", event.Room,
			"error", err,
		)
	}
}

// Close stops forwarding.
func (b *Bridge) Close() {
	for _, s := range b.subs {
		s.Unsubscribe()
	}
	for _, cancel := range b.cancels {
		cancel()
	}
}
