package ports

import (
	"context"

	"github.com/lorrc/liveops/internal/core/domain"
)

// VoiceRelay defines the port for the backend signaling relay.
type VoiceRelay interface {
	Connect(ctx context.Context, req domain.RelayConnectRequest) (domain.RelayConnectResponse, error)
	Disconnect(ctx context.Context, sessionID string) error
}

// AudioConstraints are the processing options requested for local capture.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// MediaStream is a captured local audio stream.
type MediaStream interface {
	SetEnabled(enabled bool)
	Stop()
}

// MediaDevices acquires local capture.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints AudioConstraints) (MediaStream, error)
}

// AudioOutput plays (or records) remote audio.
type AudioOutput interface {
	SetMuted(muted bool)
}

// PeerState is the connection state reported by a peer transport.
type PeerState string

const (
	PeerStateConnected    PeerState = "connected"
	PeerStateDisconnected PeerState = "disconnected"
	PeerStateFailed       PeerState = "failed"
	PeerStateClosed       PeerState = "closed"
)

// PeerConfig configures a new peer transport.
type PeerConfig struct {
	ICEServers     []string
	DataChannel    string
	OnMessage      func(data []byte)
	OnStateChange  func(state PeerState)
	OnRemoteStream func()
}

// Peer is one real-time media session with the remote side.
type Peer interface {
	AddStream(stream MediaStream) error
	// CreateOffer returns the local description once candidate gathering
	// is complete.
	CreateOffer(ctx context.Context) (string, error)
	SetAnswer(sdp string) error
	Output() AudioOutput
	Close() error
}

// PeerFactory creates peer transports.
type PeerFactory interface {
	NewPeer(ctx context.Context, cfg PeerConfig) (Peer, error)
}
