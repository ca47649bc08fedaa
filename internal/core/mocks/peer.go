package mocks

import (
	"context"
	"sync"

	"github.com/lorrc/liveops/internal/core/ports"
)

// FakeMediaStream records enable and stop calls.
type FakeMediaStream struct {
	mu      sync.Mutex
	enabled bool
	stopped bool
}

func NewFakeMediaStream() *FakeMediaStream {
	return &FakeMediaStream{enabled: true}
}

func (s *FakeMediaStream) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
}

func (s *FakeMediaStream) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *FakeMediaStream) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

func (s *FakeMediaStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// FakeAudioOutput records the mute flag.
type FakeAudioOutput struct {
	mu    sync.Mutex
	muted bool
}

func (o *FakeAudioOutput) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
}

func (o *FakeAudioOutput) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// FakePeer is an in-memory ports.Peer. Deliver and SetState drive the
// callbacks the client registered.
type FakePeer struct {
	Config   ports.PeerConfig
	Offer    string
	OfferErr error
	AnswerFn func(sdp string) error

	mu      sync.Mutex
	streams []ports.MediaStream
	answer  string
	closed  bool
	output  *FakeAudioOutput
}

func (p *FakePeer) AddStream(stream ports.MediaStream) error {
	p.mu.Lock()
	p.streams = append(p.streams, stream)
	p.mu.Unlock()
	return nil
}

func (p *FakePeer) CreateOffer(ctx context.Context) (string, error) {
	if p.OfferErr != nil {
		return "", p.OfferErr
	}
	if p.Offer == "" {
		return "v=0 fake-offer", nil
	}
	return p.Offer, nil
}

func (p *FakePeer) SetAnswer(sdp string) error {
	if p.AnswerFn != nil {
		if err := p.AnswerFn(sdp); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.answer = sdp
	p.mu.Unlock()
	return nil
}

func (p *FakePeer) Output() ports.AudioOutput {
	return p.output
}

func (p *FakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Deliver simulates a data channel message from the remote side.
func (p *FakePeer) Deliver(data []byte) {
	if p.Config.OnMessage != nil {
		p.Config.OnMessage(data)
	}
}

// SetState simulates a transport state change.
func (p *FakePeer) SetState(state ports.PeerState) {
	if p.Config.OnStateChange != nil {
		p.Config.OnStateChange(state)
	}
}

func (p *FakePeer) Answer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answer
}

func (p *FakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePeer) AudioOutput() *FakeAudioOutput {
	return p.output
}

// FakePeerFactory hands out FakePeers and remembers them.
type FakePeerFactory struct {
	Err       error
	AnswerErr error

	mu    sync.Mutex
	peers []*FakePeer
}

func (f *FakePeerFactory) NewPeer(ctx context.Context, cfg ports.PeerConfig) (ports.Peer, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	p := &FakePeer{Config: cfg, output: &FakeAudioOutput{}}
	if f.AnswerErr != nil {
		answerErr := f.AnswerErr
		p.AnswerFn = func(string) error { return answerErr }
	}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

// Last returns the most recently created peer.
func (f *FakePeerFactory) Last() *FakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.peers) == 0 {
		return nil
	}
	return f.peers[len(f.peers)-1]
}

func (f *FakePeerFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers)
}
