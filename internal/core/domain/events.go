package domain

import "encoding/json"

// Realtime event categories published by the event server.
const (
	EventDashboardUpdate = "dashboard:update"
	EventCallUpdate      = "call:update"
	EventCallEnd         = "call:end"
	EventLiveCallsUpdate = "livecalls:update"
	EventTicketUpdate    = "ticket:update"
	EventAIResponse      = "ai:response"
	EventOrgUpdate       = "org:update"
)

// Room names on the realtime channel.
const (
	RoomDashboard    = "dashboard"
	RoomCalls        = "calls"
	RoomTickets      = "tickets"
	RoomOrganization = "organization"
	RoomVoice        = "voice"
)

// DefaultRooms are joined after every successful connect.
var DefaultRooms = []string{RoomDashboard, RoomCalls, RoomTickets}

// Envelope is a single frame on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SubscribeEvent returns the outbound room-join event name for room.
func SubscribeEvent(room string) string {
	return "subscribe:" + room
}

// HubEventType defines the type of event fanned out to console browsers.
type HubEventType string

const (
	HubEventRealtime   HubEventType = "REALTIME"
	HubEventLiveCalls  HubEventType = "LIVE_CALLS"
	HubEventInvalidate HubEventType = "INVALIDATE"
	HubEventCallState  HubEventType = "CALL_STATE"
)

// HubEvent is the payload sent over the console WebSocket.
type HubEvent struct {
	Type    HubEventType `json:"type"`
	Event   string       `json:"event,omitempty"`
	Payload interface{}  `json:"payload"`
	Room    string       `json:"room"` // Used for routing to specific rooms
}

// ConnectionStatus describes the realtime transport for status indicators.
type ConnectionStatus struct {
	Connected         bool   `json:"connected"`
	ConnectionID      string `json:"connectionId,omitempty"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}
