package rtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/lorrc/liveops/internal/core/ports"
)

const defaultGatherTimeout = 10 * time.Second

// PeerFactory builds pion peer connections for voice sessions.
type PeerFactory struct {
	recordingDir  string
	loopback      bool
	gatherTimeout time.Duration
	logger        *slog.Logger
}

var _ ports.PeerFactory = (*PeerFactory)(nil)

// Option configures a PeerFactory.
type Option func(*PeerFactory)

// WithLoopbackCandidates includes loopback ICE candidates. Needed when the
// relay runs on the same host, and in tests.
func WithLoopbackCandidates() Option {
	return func(f *PeerFactory) { f.loopback = true }
}

// WithGatherTimeout bounds ICE candidate gathering.
func WithGatherTimeout(d time.Duration) Option {
	return func(f *PeerFactory) { f.gatherTimeout = d }
}

// NewPeerFactory creates a factory. recordingDir may be empty.
func NewPeerFactory(recordingDir string, logger *slog.Logger, opts ...Option) *PeerFactory {
	f := &PeerFactory{
		recordingDir:  recordingDir,
		gatherTimeout: defaultGatherTimeout,
		logger:        logger.With("component", "peer_factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewPeer creates a peer connection with the signaling data channel open
// for negotiation.
func (f *PeerFactory) NewPeer(ctx context.Context, cfg ports.PeerConfig) (ports.Peer, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if f.loopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	)

	config := webrtc.Configuration{}
	if len(cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}

	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:            pc,
		output:        newRemoteAudio(f.recordingDir, f.logger),
		gatherTimeout: f.gatherTimeout,
		logger:        f.logger,
	}

	dc, err := pc.CreateDataChannel(cfg.DataChannel, nil)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create data channel %s: %w", cfg.DataChannel, err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if cfg.OnMessage != nil {
			cfg.OnMessage(msg.Data)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		f.logger.Debug("peer connection state change", "state", state.String())
		mapped, ok := mapState(state)
		if ok && cfg.OnStateChange != nil {
			cfg.OnStateChange(mapped)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		if cfg.OnRemoteStream != nil {
			cfg.OnRemoteStream()
		}
		go p.output.consume(track)
	})

	return p, nil
}

func mapState(state webrtc.PeerConnectionState) (ports.PeerState, bool) {
	switch state {
	case webrtc.PeerConnectionStateConnected:
		return ports.PeerStateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return ports.PeerStateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return ports.PeerStateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return ports.PeerStateClosed, true
	default:
		return "", false
	}
}

// trackSource is implemented by local streams that expose a pion track.
type trackSource interface {
	Track() webrtc.TrackLocal
}

// Peer wraps one pion PeerConnection.
type Peer struct {
	pc            *webrtc.PeerConnection
	output        *RemoteAudio
	gatherTimeout time.Duration
	logger        *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ ports.Peer = (*Peer)(nil)

// AddStream attaches the stream's track as a send/receive audio line.
func (p *Peer) AddStream(stream ports.MediaStream) error {
	src, ok := stream.(trackSource)
	if !ok {
		return fmt.Errorf("stream %T has no local track", stream)
	}

	sender, err := p.pc.AddTrack(src.Track())
	if err != nil {
		return fmt.Errorf("add audio track: %w", err)
	}

	// RTCP must be drained for interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

// CreateOffer sets the local description and waits for candidate
// gathering to finish, so the returned SDP carries every candidate.
func (p *Peer) CreateOffer(ctx context.Context) (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(p.pc)
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(p.gatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", p.gatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := p.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description missing after gathering")
	}
	return local.SDP, nil
}

// SetAnswer applies the remote answer.
func (p *Peer) SetAnswer(sdp string) error {
	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (p *Peer) Output() ports.AudioOutput {
	return p.output
}

// Close tears down the connection and finishes any recording.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pc.Close()
		p.output.close()
	})
	return p.closeErr
}
