package rtc

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/lorrc/liveops/internal/core/ports"
)

// RemoteAudio receives the remote Opus track. With a recording directory
// it writes an Ogg file per session; otherwise packets are discarded.
// Muted packets are dropped before recording.
type RemoteAudio struct {
	recordingDir string
	logger       *slog.Logger

	muted   atomic.Bool
	packets atomic.Int64

	mu     sync.Mutex
	writer *oggwriter.OggWriter
	path   string
	closed bool
}

var _ ports.AudioOutput = (*RemoteAudio)(nil)

func newRemoteAudio(recordingDir string, logger *slog.Logger) *RemoteAudio {
	return &RemoteAudio{recordingDir: recordingDir, logger: logger}
}

func (a *RemoteAudio) SetMuted(muted bool) {
	a.muted.Store(muted)
}

func (a *RemoteAudio) Muted() bool {
	return a.muted.Load()
}

// Packets is the number of unmuted packets received.
func (a *RemoteAudio) Packets() int64 {
	return a.packets.Load()
}

// RecordingPath is the file being written, if any.
func (a *RemoteAudio) RecordingPath() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.path
}

func (a *RemoteAudio) consume(track *webrtc.TrackRemote) {
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeOpus) {
		a.logger.Warn("ignoring non-opus remote track", "mime_type", track.Codec().MimeType)
		return
	}

	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if a.muted.Load() {
			continue
		}
		a.packets.Add(1)

		a.mu.Lock()
		if err := a.writeLocked(pkt); err != nil {
			a.logger.Warn("recording stopped", "error", err)
			a.recordingDir = ""
		}
		a.mu.Unlock()
	}
}

func (a *RemoteAudio) writeLocked(pkt *rtp.Packet) error {
	if a.recordingDir == "" || a.closed {
		return nil
	}
	if a.writer == nil {
		path := filepath.Join(a.recordingDir, fmt.Sprintf("call-%s.ogg", time.Now().UTC().Format("20060102T150405.000Z")))
		w, err := oggwriter.New(path, opusClockRate, opusChannels)
		if err != nil {
			return fmt.Errorf("create recording: %w", err)
		}
		a.writer = w
		a.path = path
		a.logger.Info("recording remote audio", "path", path)
	}
	return a.writer.WriteRTP(pkt)
}

func (a *RemoteAudio) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	if a.writer != nil {
		if err := a.writer.Close(); err != nil {
			a.logger.Warn("failed to close recording", "error", err)
		}
		a.writer = nil
	}
}
