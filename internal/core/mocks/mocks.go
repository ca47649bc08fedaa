package mocks

import (
	"context"
	"encoding/json"

	"github.com/lorrc/liveops/internal/core/domain"
	"github.com/lorrc/liveops/internal/core/ports"
	"github.com/stretchr/testify/mock"
)

// MockVoiceRelay is a mock implementation of ports.VoiceRelay
type MockVoiceRelay struct {
	mock.Mock
}

func NewMockVoiceRelay() *MockVoiceRelay {
	return &MockVoiceRelay{}
}

func (m *MockVoiceRelay) Connect(ctx context.Context, req domain.RelayConnectRequest) (domain.RelayConnectResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.RelayConnectResponse), args.Error(1)
}

func (m *MockVoiceRelay) Disconnect(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// MockMediaDevices is a mock implementation of ports.MediaDevices
type MockMediaDevices struct {
	mock.Mock
}

func NewMockMediaDevices() *MockMediaDevices {
	return &MockMediaDevices{}
}

func (m *MockMediaDevices) GetUserMedia(ctx context.Context, constraints ports.AudioConstraints) (ports.MediaStream, error) {
	args := m.Called(ctx, constraints)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(ports.MediaStream), args.Error(1)
}

// MockMetricsAPI is a mock implementation of ports.MetricsAPI
type MockMetricsAPI struct {
	mock.Mock
}

func NewMockMetricsAPI() *MockMetricsAPI {
	return &MockMetricsAPI{}
}

func (m *MockMetricsAPI) FetchView(ctx context.Context, view domain.DashboardView) (json.RawMessage, error) {
	args := m.Called(ctx, view)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

// MockKeyValueStore is a mock implementation of ports.KeyValueStore
type MockKeyValueStore struct {
	mock.Mock
}

func NewMockKeyValueStore() *MockKeyValueStore {
	return &MockKeyValueStore{}
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockKeyValueStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockKeyValueStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockKeyValueStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockRealtimeTransport is a mock implementation of ports.RealtimeTransport
type MockRealtimeTransport struct {
	mock.Mock
}

func NewMockRealtimeTransport() *MockRealtimeTransport {
	return &MockRealtimeTransport{}
}

func (m *MockRealtimeTransport) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockRealtimeTransport) Disconnect() {
	m.Called()
}

func (m *MockRealtimeTransport) Subscribe(room string, params map[string]interface{}) {
	m.Called(room, params)
}

func (m *MockRealtimeTransport) SubscribeToOrganization(organizationID string) {
	m.Called(organizationID)
}

func (m *MockRealtimeTransport) Status() domain.ConnectionStatus {
	args := m.Called()
	return args.Get(0).(domain.ConnectionStatus)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.HubEvent) error {
	args := m.Called(event)
	return args.Error(0)
}
