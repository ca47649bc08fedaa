package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lorrc/liveops/internal/core/domain"
	apperrors "github.com/lorrc/liveops/internal/core/errors"
	"github.com/lorrc/liveops/internal/core/mocks"
	"github.com/lorrc/liveops/internal/core/ports"
	"github.com/lorrc/liveops/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type signalingFixture struct {
	relay  *mocks.MockVoiceRelay
	media  *mocks.MockMediaDevices
	peers  *mocks.FakePeerFactory
	stream *mocks.FakeMediaStream
	client *services.SignalingClient
}

func newSignalingFixture(t *testing.T, resolver services.PermissionResolver) *signalingFixture {
	t.Helper()

	f := &signalingFixture{
		relay:  mocks.NewMockVoiceRelay(),
		media:  mocks.NewMockMediaDevices(),
		peers:  &mocks.FakePeerFactory{},
		stream: mocks.NewFakeMediaStream(),
	}

	cfg := services.DefaultSignalingConfig()
	// The tests drive the duration timer by hand.
	cfg.TickInterval = time.Hour
	f.client = services.NewSignalingClient(f.relay, f.media, f.peers, resolver, cfg, discardLogger())
	t.Cleanup(func() { f.client.Close(context.Background()) })
	return f
}

func (f *signalingFixture) expectMedia() {
	f.media.On("GetUserMedia", mock.Anything, ports.AudioConstraints{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}).Return(f.stream, nil)
}

func TestSignalingClient_EndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()

	f.relay.On("Connect", mock.Anything, mock.MatchedBy(func(req domain.RelayConnectRequest) bool {
		return req.Role == domain.RoleRequester && req.MaxDuration == 15 && req.SDP != ""
	})).Return(domain.RelayConnectResponse{SDP: "v=0 answer", SessionID: "sess-1"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-1").Return(nil).Once()

	require.NoError(t, f.client.StartCall(ctx, domain.RoleRequester))

	snap := f.client.Snapshot()
	assert.Equal(t, domain.CallStateConnected, snap.State)
	assert.Equal(t, "sess-1", snap.SessionID)

	peer := f.peers.Last()
	require.NotNil(t, peer)
	assert.Equal(t, "v=0 answer", peer.Answer())
	assert.Equal(t, "oai-events", peer.Config.DataChannel)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, peer.Config.ICEServers)

	peer.Deliver([]byte(`{"type":"response.audio_transcript.done","transcript":"Hello, how can I help?"}`))

	snap = f.client.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.TranscriptAssistant, snap.Transcript[0].Role)
	assert.Equal(t, "Hello, how can I help?", snap.Transcript[0].Text)

	f.client.Hangup(ctx)

	snap = f.client.Snapshot()
	assert.Equal(t, domain.CallStateIdle, snap.State)
	assert.False(t, snap.Muted)
	assert.Empty(t, snap.SessionID)
	assert.True(t, f.stream.Stopped())
	assert.True(t, peer.Closed())
	f.relay.AssertCalled(t, "Disconnect", mock.Anything, "sess-1")
	f.relay.AssertExpectations(t)
}

func TestSignalingClient_PermissionGating(t *testing.T) {
	ctx := context.Background()
	deny := func(domain.Role) domain.PermissionSet {
		return domain.PermissionSet{CanInitiateCall: false, MaxCallDurationMinutes: 15}
	}
	f := newSignalingFixture(t, deny)

	var states []domain.CallState
	f.client.Watch(func(s domain.CallSnapshot) { states = append(states, s.State) })

	err := f.client.StartCall(ctx, domain.RoleRequester)

	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	assert.Equal(t, domain.CallStateIdle, f.client.Snapshot().State)
	assert.NotEmpty(t, f.client.Snapshot().Error)
	for _, s := range states {
		assert.Equal(t, domain.CallStateIdle, s)
	}
	f.media.AssertNotCalled(t, "GetUserMedia", mock.Anything, mock.Anything)
	assert.Zero(t, f.peers.Count())
}

func TestSignalingClient_DurationCutoff(t *testing.T) {
	ctx := context.Background()
	oneMinute := func(domain.Role) domain.PermissionSet {
		return domain.PermissionSet{CanInitiateCall: true, MaxCallDurationMinutes: 1}
	}
	f := newSignalingFixture(t, oneMinute)
	f.expectMedia()
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{SDP: "answer", SessionID: "sess-2"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-2").Return(nil).Once()

	require.NoError(t, f.client.StartCall(ctx, domain.RoleAgent))

	for i := 1; i < 60; i++ {
		require.False(t, f.client.Tick(), "tick %d", i)
	}
	assert.Equal(t, 59, f.client.Snapshot().Duration)
	assert.Equal(t, domain.CallStateConnected, f.client.Snapshot().State)

	assert.True(t, f.client.Tick())

	snap := f.client.Snapshot()
	assert.Equal(t, domain.CallStateIdle, snap.State)
	assert.Equal(t, "maximum call duration of 1 minute reached", snap.Error)
	f.relay.AssertExpectations(t)
}

func TestSignalingClient_MediaDenied(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.media.On("GetUserMedia", mock.Anything, mock.Anything).Return(nil, errors.New("NotAllowedError"))

	err := f.client.StartCall(ctx, domain.RoleAdmin)

	assert.ErrorIs(t, err, apperrors.ErrMediaCaptureDenied)
	snap := f.client.Snapshot()
	assert.Equal(t, domain.CallStateError, snap.State)
	assert.Contains(t, snap.Error, "NotAllowedError")
	assert.Zero(t, f.peers.Count())

	f.client.Hangup(ctx)
	snap = f.client.Snapshot()
	assert.Equal(t, domain.CallStateIdle, snap.State)
	assert.Contains(t, snap.Error, "NotAllowedError", "message is kept until the next attempt")
}

func TestSignalingClient_RelayRejected(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{}, &apperrors.RelayError{StatusCode: 503, Message: "voice service unavailable"})

	err := f.client.StartCall(ctx, domain.RoleAgent)

	assert.ErrorIs(t, err, apperrors.ErrRelayRejected)
	snap := f.client.Snapshot()
	assert.Equal(t, domain.CallStateError, snap.State)
	assert.Equal(t, "voice service unavailable", snap.Error)
	assert.True(t, f.stream.Stopped())
	assert.True(t, f.peers.Last().Closed())
	f.relay.AssertNotCalled(t, "Disconnect", mock.Anything, mock.Anything)
}

func TestSignalingClient_NegotiationFailure(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.peers.Err = errors.New("no ice")

	err := f.client.StartCall(ctx, domain.RoleAgent)

	assert.ErrorIs(t, err, apperrors.ErrNegotiationFailed)
	assert.Equal(t, domain.CallStateError, f.client.Snapshot().State)
	assert.True(t, f.stream.Stopped())
}

func TestSignalingClient_AnswerRejected(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.peers.AnswerErr = errors.New("bad sdp")
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{SDP: "garbage", SessionID: "sess-3"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-3").Return(nil).Once()

	err := f.client.StartCall(ctx, domain.RoleAgent)

	assert.ErrorIs(t, err, apperrors.ErrNegotiationFailed)
	assert.Equal(t, domain.CallStateError, f.client.Snapshot().State)
	f.relay.AssertCalled(t, "Disconnect", mock.Anything, "sess-3")
}

func TestSignalingClient_SecondStartWhileConnected(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{SDP: "answer", SessionID: "sess-4"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-4").Return(nil)

	require.NoError(t, f.client.StartCall(ctx, domain.RoleAdmin))
	err := f.client.StartCall(ctx, domain.RoleAdmin)

	assert.ErrorIs(t, err, apperrors.ErrCallInProgress)
	assert.Equal(t, 1, f.peers.Count())
}

// blockingRelay holds Connect open until released.
type blockingRelay struct {
	entered      chan struct{}
	release      chan struct{}
	resp         domain.RelayConnectResponse
	disconnected chan string
}

func (r *blockingRelay) Connect(ctx context.Context, req domain.RelayConnectRequest) (domain.RelayConnectResponse, error) {
	close(r.entered)
	<-r.release
	return r.resp, nil
}

func (r *blockingRelay) Disconnect(ctx context.Context, sessionID string) error {
	r.disconnected <- sessionID
	return nil
}

func TestSignalingClient_HangupDuringNegotiation(t *testing.T) {
	ctx := context.Background()

	relay := &blockingRelay{
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
		resp:         domain.RelayConnectResponse{SDP: "late answer", SessionID: "late-session"},
		disconnected: make(chan string, 1),
	}
	media := mocks.NewMockMediaDevices()
	stream := mocks.NewFakeMediaStream()
	media.On("GetUserMedia", mock.Anything, mock.Anything).Return(stream, nil)
	peers := &mocks.FakePeerFactory{}

	client := services.NewSignalingClient(relay, media, peers, nil, services.DefaultSignalingConfig(), discardLogger())

	done := make(chan error, 1)
	go func() { done <- client.StartCall(ctx, domain.RoleAgent) }()

	<-relay.entered
	client.Hangup(ctx)
	assert.Equal(t, domain.CallStateIdle, client.Snapshot().State)
	assert.True(t, peers.Last().Closed())
	assert.True(t, stream.Stopped())

	close(relay.release)
	err := <-done

	assert.ErrorIs(t, err, apperrors.ErrCallCancelled)
	snap := client.Snapshot()
	assert.Equal(t, domain.CallStateIdle, snap.State)
	assert.Empty(t, snap.SessionID)
	assert.Empty(t, peers.Last().Answer(), "late answer must not be applied")

	select {
	case id := <-relay.disconnected:
		assert.Equal(t, "late-session", id)
	case <-time.After(time.Second):
		t.Fatal("abandoned relay session was not closed")
	}
}

func TestSignalingClient_HangupIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)

	f.client.Hangup(ctx)
	f.client.Hangup(ctx)

	assert.Equal(t, domain.CallStateIdle, f.client.Snapshot().State)
	f.relay.AssertNotCalled(t, "Disconnect", mock.Anything, mock.Anything)
}

func TestSignalingClient_MuteAndSpeaker(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{SDP: "answer", SessionID: "sess-5"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-5").Return(nil)

	require.NoError(t, f.client.StartCall(ctx, domain.RoleAdmin))

	assert.True(t, f.client.ToggleMute())
	assert.False(t, f.stream.Enabled())
	assert.False(t, f.client.ToggleMute())
	assert.True(t, f.stream.Enabled())

	assert.False(t, f.client.ToggleSpeaker())
	assert.True(t, f.peers.Last().AudioOutput().Muted())
	assert.True(t, f.client.ToggleSpeaker())
	assert.False(t, f.peers.Last().AudioOutput().Muted())

	f.client.ToggleMute()
	f.client.Hangup(ctx)
	assert.False(t, f.client.Snapshot().Muted, "hangup clears mute")
}

func TestSignalingClient_MuteOutsideSessionOnlyFlipsFlag(t *testing.T) {
	f := newSignalingFixture(t, nil)

	assert.True(t, f.client.ToggleMute())
	assert.True(t, f.client.Snapshot().Muted)
}

func TestSignalingClient_PeerFailureHangsUp(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{SDP: "answer", SessionID: "sess-6"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-6").Return(nil).Once()

	require.NoError(t, f.client.StartCall(ctx, domain.RoleAdmin))
	f.peers.Last().SetState(ports.PeerStateFailed)

	require.Eventually(t, func() bool {
		return f.client.Snapshot().State == domain.CallStateIdle
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, apperrors.ErrConnectionLost.Error(), f.client.Snapshot().Error)
	f.relay.AssertExpectations(t)
}

func TestSignalingClient_IgnoresMalformedAndOtherFrames(t *testing.T) {
	ctx := context.Background()
	f := newSignalingFixture(t, nil)
	f.expectMedia()
	f.relay.On("Connect", mock.Anything, mock.Anything).
		Return(domain.RelayConnectResponse{SDP: "answer", SessionID: "sess-7"}, nil)
	f.relay.On("Disconnect", mock.Anything, "sess-7").Return(nil)

	require.NoError(t, f.client.StartCall(ctx, domain.RoleAdmin))
	peer := f.peers.Last()

	peer.Deliver([]byte(`{"type":`))
	peer.Deliver([]byte(`{"type":"session.created"}`))
	peer.Deliver([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hi"}`))

	snap := f.client.Snapshot()
	require.Len(t, snap.Transcript, 1)
	assert.Equal(t, domain.TranscriptUser, snap.Transcript[0].Role)
}
