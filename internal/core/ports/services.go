package ports

import (
	"context"
	"encoding/json"

	"github.com/lorrc/liveops/internal/core/domain"
)

// EventHandler receives the data of one realtime event.
type EventHandler func(data json.RawMessage)

// Subscription identifies one handler registration.
type Subscription interface {
	Category() string
	Unsubscribe()
}

// EventBus defines the port for in-process realtime event distribution.
type EventBus interface {
	On(category string, handler EventHandler) Subscription
	Off(sub Subscription)
	Emit(category string, data json.RawMessage)
}

// RealtimeTransport defines the port for the event server connection.
type RealtimeTransport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Subscribe(room string, params map[string]interface{})
	SubscribeToOrganization(organizationID string)
	Status() domain.ConnectionStatus
}

// MetricsAPI defines the port for the aggregated metrics REST API.
type MetricsAPI interface {
	FetchView(ctx context.Context, view domain.DashboardView) (json.RawMessage, error)
}

// QueryCache defines the port for cached dashboard views.
type QueryCache interface {
	Get(ctx context.Context, view domain.DashboardView) (json.RawMessage, error)
	Invalidate(views ...domain.DashboardView)
	OnInvalidate(fn func(views []domain.DashboardView)) (cancel func())
}

// LiveCallService defines the port for reading the live call registry.
type LiveCallService interface {
	Snapshot() domain.LiveCallsSnapshot
	Get(id string) (domain.LiveCallSession, bool)
	Watch(fn func(domain.LiveCallsSnapshot)) (cancel func())
}

// SignalingService defines the port for the local outbound voice session.
type SignalingService interface {
	StartCall(ctx context.Context, role domain.Role) error
	Hangup(ctx context.Context)
	ToggleMute() bool
	ToggleSpeaker() bool
	Snapshot() domain.CallSnapshot
	Watch(fn func(domain.CallSnapshot)) (cancel func())
}

// FieldStore defines the port for persisted operator input fields.
type FieldStore interface {
	State(ctx context.Context, key string) (domain.FieldState, error)
	SetValue(ctx context.Context, key, value string) (domain.FieldState, error)
	Commit(ctx context.Context, key string) (domain.FieldState, error)
	AddToSuggestions(ctx context.Context, key, value string) (domain.FieldState, error)
	RemoveSuggestion(ctx context.Context, key, value string) (domain.FieldState, error)
	ClearValue(ctx context.Context, key string) (domain.FieldState, error)
}

// EventBroadcaster defines the port for fanning events out to console clients.
type EventBroadcaster interface {
	Broadcast(event domain.HubEvent) error
}
