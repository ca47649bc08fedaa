// Package rtc implements the voice session ports on pion/webrtc.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/lorrc/liveops/internal/core/ports"
)

const (
	opusClockRate = 48000
	opusChannels  = 2

	// Opus packets are paced at 20ms.
	framePeriod = 20 * time.Millisecond
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

var opusCapability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeOpus,
	ClockRate: opusClockRate,
	Channels:  opusChannels,
}

// MediaDevices produces local Opus streams. With a source path every stream
// loops that Ogg/Opus file; without one it sends silence.
type MediaDevices struct {
	sourcePath string
	logger     *slog.Logger
}

var _ ports.MediaDevices = (*MediaDevices)(nil)

func NewMediaDevices(sourcePath string, logger *slog.Logger) *MediaDevices {
	return &MediaDevices{
		sourcePath: sourcePath,
		logger:     logger.With("component", "media_devices"),
	}
}

// GetUserMedia opens a new local stream. An unreadable source file is
// reported as a capture failure.
func (d *MediaDevices) GetUserMedia(ctx context.Context, constraints ports.AudioConstraints) (ports.MediaStream, error) {
	var src *oggSource
	if d.sourcePath != "" {
		s, err := openOggSource(d.sourcePath)
		if err != nil {
			return nil, fmt.Errorf("open audio source: %w", err)
		}
		src = s
	}

	track, err := webrtc.NewTrackLocalStaticSample(opusCapability, "audio", "liveops-"+uuid.NewString())
	if err != nil {
		if src != nil {
			_ = src.Close()
		}
		return nil, fmt.Errorf("create audio track: %w", err)
	}

	d.logger.Debug("local audio captured",
		"source", d.sourcePath,
		"echo_cancellation", constraints.EchoCancellation,
		"noise_suppression", constraints.NoiseSuppression,
		"auto_gain_control", constraints.AutoGainControl,
	)

	s := &LocalStream{
		track:  track,
		src:    src,
		done:   make(chan struct{}),
		logger: d.logger,
	}
	s.enabled.Store(true)
	go s.pump()
	return s, nil
}

// LocalStream is a paced Opus track. Disabling it sends silence in place
// of the source.
type LocalStream struct {
	track   *webrtc.TrackLocalStaticSample
	src     *oggSource
	enabled atomic.Bool
	done    chan struct{}
	once    sync.Once
	logger  *slog.Logger
}

var _ ports.MediaStream = (*LocalStream)(nil)

// Track is the pion track to attach to a peer connection.
func (s *LocalStream) Track() webrtc.TrackLocal {
	return s.track
}

func (s *LocalStream) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

func (s *LocalStream) Enabled() bool {
	return s.enabled.Load()
}

// Stop ends the stream. It is safe to call more than once.
func (s *LocalStream) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *LocalStream) pump() {
	ticker := time.NewTicker(framePeriod)
	defer ticker.Stop()
	defer func() {
		if s.src != nil {
			_ = s.src.Close()
		}
	}()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		sample := media.Sample{Data: opusSilence, Duration: framePeriod}
		if s.src != nil {
			data, duration, err := s.src.Next()
			if err != nil {
				s.logger.Warn("audio source failed, sending silence", "error", err)
				_ = s.src.Close()
				s.src = nil
			} else if s.enabled.Load() {
				sample = media.Sample{Data: data, Duration: duration}
			}
		}

		if err := s.track.WriteSample(sample); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			s.logger.Debug("failed to write audio sample", "error", err)
		}
	}
}

// oggSource reads Opus pages from a file and rewinds at EOF.
type oggSource struct {
	path        string
	file        *os.File
	reader      *oggreader.OggReader
	lastGranule uint64
}

func openOggSource(path string) (*oggSource, error) {
	s := &oggSource{path: path}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *oggSource) open() error {
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("read ogg header: %w", err)
	}
	s.file = f
	s.reader = reader
	s.lastGranule = 0
	return nil
}

// Next returns the next page payload and its playback duration.
func (s *oggSource) Next() ([]byte, time.Duration, error) {
	for attempt := 0; attempt < 2; attempt++ {
		data, header, err := s.reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			_ = s.file.Close()
			if err := s.open(); err != nil {
				return nil, 0, err
			}
			continue
		}
		if err != nil {
			return nil, 0, err
		}

		samples := header.GranulePosition - s.lastGranule
		s.lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusClockRate * float64(time.Second))
		if duration <= 0 {
			duration = framePeriod
		}
		return data, duration, nil
	}
	return nil, 0, fmt.Errorf("audio source %s has no pages", s.path)
}

func (s *oggSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
