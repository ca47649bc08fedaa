package rtc

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/liveops/internal/core/mocks"
	"github.com/lorrc/liveops/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeOggFixture(t *testing.T, path string, packets int) {
	t.Helper()
	w, err := oggwriter.New(path, opusClockRate, opusChannels)
	require.NoError(t, err)
	for i := 0; i < packets; i++ {
		require.NoError(t, w.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				SequenceNumber: uint16(i),
				Timestamp:      uint32(i * 960),
			},
			Payload: opusSilence,
		}))
	}
	require.NoError(t, w.Close())
}

func TestMediaDevices_Silence(t *testing.T) {
	devices := NewMediaDevices("", discardLogger())

	stream, err := devices.GetUserMedia(context.Background(), ports.AudioConstraints{
		EchoCancellation: true, NoiseSuppression: true, AutoGainControl: true,
	})
	require.NoError(t, err)

	local := stream.(*LocalStream)
	assert.True(t, local.Enabled())
	local.SetEnabled(false)
	assert.False(t, local.Enabled())
	assert.NotNil(t, local.Track())

	stream.Stop()
	stream.Stop()
}

func TestMediaDevices_MissingSourceIsCaptureFailure(t *testing.T) {
	devices := NewMediaDevices(filepath.Join(t.TempDir(), "missing.ogg"), discardLogger())

	_, err := devices.GetUserMedia(context.Background(), ports.AudioConstraints{})
	assert.Error(t, err)
}

func TestOggSource_LoopsAtEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "greeting.ogg")
	writeOggFixture(t, path, 3)

	src, err := openOggSource(path)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	// More reads than pages forces at least one rewind.
	for i := 0; i < 10; i++ {
		data, duration, err := src.Next()
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		assert.Greater(t, duration, time.Duration(0))
	}
}

func TestPeer_AddStreamRequiresTrack(t *testing.T) {
	factory := NewPeerFactory("", discardLogger())
	peer, err := factory.NewPeer(context.Background(), ports.PeerConfig{DataChannel: "oai-events"})
	require.NoError(t, err)
	defer func() { _ = peer.Close() }()

	assert.Error(t, peer.AddStream(&mocks.FakeMediaStream{}))
	assert.Error(t, peer.SetAnswer("not sdp"))
	assert.NoError(t, peer.Close())
}

// newAnsweringPeer plays the relay's side of the negotiation.
func newAnsweringPeer(t *testing.T) *webrtc.PeerConnection {
	t.Helper()
	m := &webrtc.MediaEngine{}
	require.NoError(t, m.RegisterDefaultCodecs())
	se := webrtc.SettingEngine{}
	se.SetIncludeLoopbackCandidate(true)

	pc, err := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)).
		NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })
	return pc
}

func TestPeer_LoopbackSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback ICE session in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	recordings := t.TempDir()
	factory := NewPeerFactory(recordings, discardLogger(), WithLoopbackCandidates())

	messages := make(chan []byte, 4)
	states := make(chan ports.PeerState, 8)
	remoteStream := make(chan struct{}, 1)

	peer, err := factory.NewPeer(ctx, ports.PeerConfig{
		DataChannel: "oai-events",
		OnMessage:   func(data []byte) { messages <- data },
		OnStateChange: func(s ports.PeerState) {
			select {
			case states <- s:
			default:
			}
		},
		OnRemoteStream: func() {
			select {
			case remoteStream <- struct{}{}:
			default:
			}
		},
	})
	require.NoError(t, err)
	defer func() { _ = peer.Close() }()

	stream, err := NewMediaDevices("", discardLogger()).GetUserMedia(ctx, ports.AudioConstraints{})
	require.NoError(t, err)
	defer stream.Stop()
	require.NoError(t, peer.AddStream(stream))

	offer, err := peer.CreateOffer(ctx)
	require.NoError(t, err)
	assert.Contains(t, offer, "opus")

	remote := newAnsweringPeer(t)
	remote.OnDataChannel(func(dc *webrtc.DataChannel) {
		dc.OnOpen(func() {
			_ = dc.SendText(`{"type":"response.audio_transcript.done","transcript":"Hello, how can I help?"}`)
		})
	})
	require.NoError(t, remote.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}))

	remoteTrack, err := webrtc.NewTrackLocalStaticSample(opusCapability, "audio", "relay")
	require.NoError(t, err)
	_, err = remote.AddTrack(remoteTrack)
	require.NoError(t, err)
	go func() {
		ticker := time.NewTicker(framePeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = remoteTrack.WriteSample(media.Sample{Data: opusSilence, Duration: framePeriod})
			}
		}
	}()

	answer, err := remote.CreateAnswer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(remote)
	require.NoError(t, remote.SetLocalDescription(answer))
	<-gathered

	require.NoError(t, peer.SetAnswer(remote.LocalDescription().SDP))

	select {
	case msg := <-messages:
		assert.JSONEq(t, `{"type":"response.audio_transcript.done","transcript":"Hello, how can I help?"}`, string(msg))
	case <-ctx.Done():
		t.Fatal("data channel message not received")
	}

	select {
	case <-remoteStream:
	case <-ctx.Done():
		t.Fatal("remote audio track not received")
	}

	output := peer.Output().(*RemoteAudio)
	require.Eventually(t, func() bool { return output.Packets() > 0 }, 10*time.Second, 20*time.Millisecond)
	assert.NotEmpty(t, output.RecordingPath())

	output.SetMuted(true)
	assert.True(t, output.Muted())

	require.NoError(t, peer.Close())
}
