package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CallState is the state of the local outbound voice session.
type CallState string

const (
	CallStateIdle          CallState = "idle"
	CallStateConnecting    CallState = "connecting"
	CallStateConnected     CallState = "connected"
	CallStateDisconnecting CallState = "disconnecting"
	CallStateError         CallState = "error"
)

// IsActive reports whether a session occupies the client.
func (s CallState) IsActive() bool {
	return s == CallStateConnecting || s == CallStateConnected
}

// TranscriptMessage is one decoded utterance of the local voice session.
type TranscriptMessage struct {
	Role      TranscriptRole `json:"role"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
}

// CallSnapshot is a read-only view of the signaling session.
type CallSnapshot struct {
	State          CallState           `json:"state"`
	SessionID      string              `json:"sessionId,omitempty"`
	Duration       int                 `json:"duration"`
	Muted          bool                `json:"muted"`
	SpeakerEnabled bool                `json:"speakerEnabled"`
	Transcript     []TranscriptMessage `json:"transcript"`
	Error          string              `json:"error,omitempty"`
}

// Voice event types decoded from the session data channel.
const (
	VoiceEventAssistantTranscriptDone = "response.audio_transcript.done"
	VoiceEventUserTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
)

// VoiceEvent is the common shape of data channel frames.
type VoiceEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
}

// DecodeVoiceEvent decodes a data channel frame. ok is false for frame types
// that do not produce a transcript line.
func DecodeVoiceEvent(data []byte, now time.Time) (msg TranscriptMessage, ok bool, err error) {
	var ev VoiceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return TranscriptMessage{}, false, fmt.Errorf("decode voice event: %w", err)
	}

	switch ev.Type {
	case VoiceEventAssistantTranscriptDone:
		if ev.Transcript == "" {
			return TranscriptMessage{}, false, nil
		}
		return TranscriptMessage{Role: TranscriptAssistant, Text: ev.Transcript, Timestamp: now}, true, nil
	case VoiceEventUserTranscriptCompleted:
		if ev.Transcript == "" {
			return TranscriptMessage{}, false, nil
		}
		return TranscriptMessage{Role: TranscriptUser, Text: ev.Transcript, Timestamp: now}, true, nil
	default:
		return TranscriptMessage{}, false, nil
	}
}

// MaxDurationMessage is the message shown when a call hits its limit.
func MaxDurationMessage(minutes int) string {
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("maximum call duration of %d %s reached", minutes, unit)
}

// RelayConnectRequest is sent to the signaling relay to open a session.
type RelayConnectRequest struct {
	SDP         string `json:"sdp"`
	Role        Role   `json:"role"`
	MaxDuration int    `json:"maxDuration"`
}

// RelayConnectResponse carries the remote answer and the relay session id.
type RelayConnectResponse struct {
	SDP       string `json:"sdp"`
	SessionID string `json:"sessionId"`
}
