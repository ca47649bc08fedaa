package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/ports"
)

// PermissionResolver maps a role to its capabilities.
type PermissionResolver func(domain.Role) domain.PermissionSet

// SignalingConfig holds the tunables of the call signaling client.
type SignalingConfig struct {
	ICEServers        []string
	DataChannel       string
	TickInterval      time.Duration
	DisconnectTimeout time.Duration
}

// DefaultSignalingConfig returns the production settings.
func DefaultSignalingConfig() SignalingConfig {
	return SignalingConfig{
		ICEServers:        []string{"stun:stun.l.google.com:19302"},
		DataChannel:       "oai-events",
		TickInterval:      time.Second,
		DisconnectTimeout: 5 * time.Second,
	}
}

// callResources are the things one call attempt acquires.
type callResources struct {
	stream    ports.MediaStream
	peer      ports.Peer
	sessionID string
	stopTimer chan struct{}
}

// SignalingClient runs at most one outbound voice session through the
// signaling relay. Every attempt carries a generation; results that arrive
// for an older generation are released and dropped.
type SignalingClient struct {
	relay       ports.VoiceRelay
	media       ports.MediaDevices
	peers       ports.PeerFactory
	permissions PermissionResolver
	cfg         SignalingConfig
	logger      *slog.Logger
	now         func() time.Time

	mu             sync.Mutex
	generation     uint64
	state          domain.CallState
	duration       int
	maxMinutes     int
	muted          bool
	speakerEnabled bool
	transcript     []domain.TranscriptMessage
	errMsg         string
	res            callResources

	watchMu  sync.RWMutex
	watchers map[int]func(domain.CallSnapshot)
	nextID   int
}

var _ ports.SignalingService = (*SignalingClient)(nil)

// NewSignalingClient creates an idle client. A nil resolver uses
// domain.PermissionsFor.
func NewSignalingClient(
	relay ports.VoiceRelay,
	media ports.MediaDevices,
	peers ports.PeerFactory,
	permissions PermissionResolver,
	cfg SignalingConfig,
	logger *slog.Logger,
) *SignalingClient {
	if permissions == nil {
		permissions = domain.PermissionsFor
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = 5 * time.Second
	}
	return &SignalingClient{
		relay:          relay,
		media:          media,
		peers:          peers,
		permissions:    permissions,
		cfg:            cfg,
		logger:         logger.With("component", "signaling"),
		now:            time.Now,
		state:          domain.CallStateIdle,
		speakerEnabled: true,
		watchers:       make(map[int]func(domain.CallSnapshot)),
	}
}

// StartCall negotiates a new session for role. It returns once the session
// is connected or the attempt has failed.
func (c *SignalingClient) StartCall(ctx context.Context, role domain.Role) error {
	perms := c.permissions(role)
	if !perms.CanInitiateCall {
		c.mu.Lock()
		c.errMsg = apperrors.ErrPermissionDenied.Error()
		c.mu.Unlock()
		c.notify()
		return apperrors.ErrPermissionDenied
	}

	c.mu.Lock()
	if c.state.IsActive() {
		c.mu.Unlock()
		return apperrors.ErrCallInProgress
	}
	c.generation++
	gen := c.generation
	c.state = domain.CallStateConnecting
	c.duration = 0
	c.maxMinutes = perms.MaxCallDurationMinutes
	c.muted = false
	c.transcript = nil
	c.errMsg = ""
	c.mu.Unlock()
	c.notify()

	c.logger.Info("starting call", "role", role, "max_minutes", perms.MaxCallDurationMinutes)

	stream, err := c.media.GetUserMedia(ctx, ports.AudioConstraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	})
	if err != nil {
		return c.fail(ctx, gen, fmt.Errorf("%w: %v", apperrors.ErrMediaCaptureDenied, err))
	}
	if !c.adopt(gen, func() { c.res.stream = stream }) {
		stream.Stop()
		return apperrors.ErrCallCancelled
	}

	peer, err := c.peers.NewPeer(ctx, ports.PeerConfig{
		ICEServers:    c.cfg.ICEServers,
		DataChannel:   c.cfg.DataChannel,
		OnMessage:     c.messageHandler(gen),
		OnStateChange: c.stateHandler(gen),
	})
	if err != nil {
		return c.fail(ctx, gen, fmt.Errorf("%w: %v", apperrors.ErrNegotiationFailed, err))
	}
	if !c.adopt(gen, func() {
		c.res.peer = peer
		if out := peer.Output(); out != nil {
			out.SetMuted(!c.speakerEnabled)
		}
	}) {
		_ = peer.Close()
		return apperrors.ErrCallCancelled
	}

	if err := peer.AddStream(stream); err != nil {
		return c.fail(ctx, gen, fmt.Errorf("%w: %v", apperrors.ErrNegotiationFailed, err))
	}

	offer, err := peer.CreateOffer(ctx)
	if err != nil {
		return c.fail(ctx, gen, fmt.Errorf("%w: %v", apperrors.ErrNegotiationFailed, err))
	}

	resp, err := c.relay.Connect(ctx, domain.RelayConnectRequest{
		SDP:         offer,
		Role:        role,
		MaxDuration: perms.MaxCallDurationMinutes,
	})
	if err != nil {
		var relayErr *apperrors.RelayError
		if !errors.As(err, &relayErr) {
			err = fmt.Errorf("%w: %v", apperrors.ErrNegotiationFailed, err)
		}
		return c.fail(ctx, gen, err)
	}
	if !c.adopt(gen, func() { c.res.sessionID = resp.SessionID }) {
		c.release(ctx, callResources{sessionID: resp.SessionID})
		return apperrors.ErrCallCancelled
	}

	if err := peer.SetAnswer(resp.SDP); err != nil {
		return c.fail(ctx, gen, fmt.Errorf("%w: %v", apperrors.ErrNegotiationFailed, err))
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return apperrors.ErrCallCancelled
	}
	stop := make(chan struct{})
	c.res.stopTimer = stop
	c.state = domain.CallStateConnected
	c.mu.Unlock()

	go c.runTimer(gen, stop)

	c.logger.Info("call connected", "session_id", resp.SessionID)
	c.notify()
	return nil
}

// adopt runs store under the lock when gen is still current.
func (c *SignalingClient) adopt(gen uint64, store func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false
	}
	store()
	return true
}

// fail moves the attempt gen to the error state and releases what it holds.
func (c *SignalingClient) fail(ctx context.Context, gen uint64, err error) error {
	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return apperrors.ErrCallCancelled
	}
	c.generation++
	c.state = domain.CallStateError
	c.errMsg = err.Error()
	res := c.detachLocked()
	c.mu.Unlock()

	c.logger.Warn("call failed", "error", err)
	c.notify()
	c.release(ctx, res)
	return err
}

// Hangup ends the current session from any state and returns to idle.
func (c *SignalingClient) Hangup(ctx context.Context) {
	c.hangup(ctx, "")
}

func (c *SignalingClient) hangup(ctx context.Context, reason string) {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	wasIdle := c.state == domain.CallStateIdle
	if !wasIdle {
		c.state = domain.CallStateDisconnecting
	}
	if reason != "" {
		c.errMsg = reason
	}
	res := c.detachLocked()
	c.mu.Unlock()

	if !wasIdle {
		c.notify()
	}
	c.release(ctx, res)

	c.mu.Lock()
	if c.generation == gen {
		c.state = domain.CallStateIdle
		c.muted = false
	}
	c.mu.Unlock()
	c.notify()
}

// Close releases any active session.
func (c *SignalingClient) Close(ctx context.Context) {
	c.Hangup(ctx)
}

func (c *SignalingClient) detachLocked() callResources {
	res := c.res
	c.res = callResources{}
	return res
}

func (c *SignalingClient) release(ctx context.Context, res callResources) {
	if res.stopTimer != nil {
		close(res.stopTimer)
	}
	if res.stream != nil {
		res.stream.Stop()
	}
	if res.peer != nil {
		if err := res.peer.Close(); err != nil {
			c.logger.Warn("closing peer failed", "error", err)
		}
	}
	if res.sessionID != "" {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.DisconnectTimeout)
		defer cancel()
		if err := c.relay.Disconnect(dctx, res.sessionID); err != nil {
			c.logger.Warn("relay disconnect failed", "session_id", res.sessionID, "error", err)
		}
	}
}

func (c *SignalingClient) runTimer(gen uint64, stop <-chan struct{}) {
	t := time.NewTicker(c.cfg.TickInterval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if done := c.tick(gen); done {
				return
			}
		}
	}
}

// tick advances the duration by one second and enforces the limit. It
// returns true when the timer should stop.
func (c *SignalingClient) tick(gen uint64) bool {
	c.mu.Lock()
	if c.generation != gen || c.state != domain.CallStateConnected {
		c.mu.Unlock()
		return true
	}
	c.duration++
	limit := c.maxMinutes * 60
	reached := limit > 0 && c.duration >= limit
	minutes := c.maxMinutes
	c.mu.Unlock()

	if reached {
		c.logger.Info("maximum call duration reached", "minutes", minutes)
		c.hangup(context.Background(), domain.MaxDurationMessage(minutes))
		return true
	}
	c.notify()
	return false
}

func (c *SignalingClient) messageHandler(gen uint64) func([]byte) {
	return func(data []byte) {
		msg, ok, err := domain.DecodeVoiceEvent(data, c.now())
		if err != nil {
			c.logger.Warn("malformed data channel message", "error", err)
			return
		}
		if !ok {
			return
		}

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return
		}
		c.transcript = append(c.transcript, msg)
		c.mu.Unlock()
		c.notify()
	}
}

func (c *SignalingClient) stateHandler(gen uint64) func(ports.PeerState) {
	return func(state ports.PeerState) {
		switch state {
		case ports.PeerStateFailed, ports.PeerStateDisconnected, ports.PeerStateClosed:
		default:
			return
		}

		c.mu.Lock()
		current := c.generation == gen && c.state == domain.CallStateConnected
		c.mu.Unlock()
		if !current {
			return
		}

		c.logger.Warn("peer transport lost", "state", state)
		reason := ""
		if state == ports.PeerStateFailed {
			reason = apperrors.ErrConnectionLost.Error()
		}
		// Peer callbacks run on the transport's own goroutines; closing it
		// from here would block on them.
		go c.hangupGeneration(gen, reason)
	}
}

func (c *SignalingClient) hangupGeneration(gen uint64, reason string) {
	c.mu.Lock()
	current := c.generation == gen
	c.mu.Unlock()
	if current {
		c.hangup(context.Background(), reason)
	}
}

// ToggleMute flips local capture and returns the new mute flag.
func (c *SignalingClient) ToggleMute() bool {
	c.mu.Lock()
	c.muted = !c.muted
	muted := c.muted
	if c.res.stream != nil {
		c.res.stream.SetEnabled(!muted)
	}
	c.mu.Unlock()

	c.notify()
	return muted
}

// ToggleSpeaker flips remote audio output and returns whether it is enabled.
func (c *SignalingClient) ToggleSpeaker() bool {
	c.mu.Lock()
	c.speakerEnabled = !c.speakerEnabled
	enabled := c.speakerEnabled
	if c.res.peer != nil {
		if out := c.res.peer.Output(); out != nil {
			out.SetMuted(!enabled)
		}
	}
	c.mu.Unlock()

	c.notify()
	return enabled
}

// Snapshot returns the current session state.
func (c *SignalingClient) Snapshot() domain.CallSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	transcript := make([]domain.TranscriptMessage, len(c.transcript))
	copy(transcript, c.transcript)
	return domain.CallSnapshot{
		State:          c.state,
		SessionID:      c.res.sessionID,
		Duration:       c.duration,
		Muted:          c.muted,
		SpeakerEnabled: c.speakerEnabled,
		Transcript:     transcript,
		Error:          c.errMsg,
	}
}

// Watch calls fn with a snapshot after every state change.
func (c *SignalingClient) Watch(fn func(domain.CallSnapshot)) func() {
	c.watchMu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	c.watchMu.Unlock()

	return func() {
		c.watchMu.Lock()
		delete(c.watchers, id)
		c.watchMu.Unlock()
	}
}

func (c *SignalingClient) notify() {
	c.watchMu.RLock()
	if len(c.watchers) == 0 {
		c.watchMu.RUnlock()
		return
	}
	fns := make([]func(domain.CallSnapshot), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.RUnlock()

	snap := c.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}
