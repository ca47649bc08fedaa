package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrCallIDRequired = errors.New("call event is missing an id")

// CallStatus is the lifecycle status of an observed call.
type CallStatus string

const (
	CallRinging    CallStatus = "ringing"
	CallInProgress CallStatus = "in-progress"
	CallOnHold     CallStatus = "on-hold"
	CallCompleted  CallStatus = "completed"
	CallFailed     CallStatus = "failed"
)

// IsTerminal reports whether a session with this status leaves the registry.
func (s CallStatus) IsTerminal() bool {
	return s == CallCompleted || s == CallFailed
}

type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// TranscriptRole tags who produced a transcript line.
type TranscriptRole string

const (
	TranscriptUser      TranscriptRole = "user"
	TranscriptAssistant TranscriptRole = "assistant"
	TranscriptSystem    TranscriptRole = "system"
)

type TranscriptEntry struct {
	Role      TranscriptRole `json:"role"`
	Text      string         `json:"text"`
	Timestamp string         `json:"timestamp"`
}

type ToolCallRecord struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Status    string          `json:"status"`
}

// LiveCallSession is one in-progress phone interaction as seen by the console.
type LiveCallSession struct {
	ID          string            `json:"id"`
	CallID      string            `json:"callId"`
	Direction   CallDirection     `json:"direction"`
	Status      CallStatus        `json:"status"`
	CallerPhone string            `json:"callerPhone,omitempty"`
	CallerName  string            `json:"callerName,omitempty"`
	AgentType   string            `json:"agentType"`
	Duration    int               `json:"duration"`
	Transcript  []TranscriptEntry `json:"transcript"`
	ToolCalls   []ToolCallRecord  `json:"toolCalls"`
	Sentiment   string            `json:"sentiment,omitempty"`
	CanTakeOver bool              `json:"canTakeOver"`
	StartedAt   string            `json:"startedAt,omitempty"`
}

// Merge overlays the top-level fields of patch onto a copy of s. Keys absent
// from patch keep their current value.
func (s LiveCallSession) Merge(patch map[string]json.RawMessage) (LiveCallSession, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return s, err
	}

	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return s, err
	}
	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return s, err
	}

	var out LiveCallSession
	if err := json.Unmarshal(merged, &out); err != nil {
		return s, fmt.Errorf("merge call %s: %w", s.ID, err)
	}
	return out, nil
}

// WithoutTranscript returns a copy of s with transcript content removed.
func (s LiveCallSession) WithoutTranscript() LiveCallSession {
	s.Transcript = nil
	return s
}

// LiveCallMetrics are the aggregate figures carried by a snapshot.
type LiveCallMetrics struct {
	ActiveCalls     int     `json:"activeCalls"`
	QueuedCalls     int     `json:"queuedCalls"`
	AverageDuration float64 `json:"averageDuration"`
	AIHandled       int     `json:"aiHandled"`
	HumanHandled    int     `json:"humanHandled"`
}

// LiveCallsSnapshot is the payload of a livecalls:update event.
type LiveCallsSnapshot struct {
	Seq     int64             `json:"seq,omitempty"`
	Calls   []LiveCallSession `json:"calls"`
	Metrics LiveCallMetrics   `json:"metrics"`
}

// CallUpdate is a parsed call:update event. Fields holds every top-level key
// of the event except seq.
type CallUpdate struct {
	ID     string
	Seq    int64
	Status CallStatus
	Fields map[string]json.RawMessage
}

// ParseCallUpdate decodes a partial session object.
func ParseCallUpdate(data []byte) (CallUpdate, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return CallUpdate{}, fmt.Errorf("decode call update: %w", err)
	}

	var u CallUpdate
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &u.ID); err != nil {
			return CallUpdate{}, fmt.Errorf("decode call update id: %w", err)
		}
	}
	if u.ID == "" {
		return CallUpdate{}, ErrCallIDRequired
	}

	if raw, ok := fields["seq"]; ok {
		if err := json.Unmarshal(raw, &u.Seq); err != nil {
			return CallUpdate{}, fmt.Errorf("decode call update seq: %w", err)
		}
		delete(fields, "seq")
	}
	if raw, ok := fields["status"]; ok {
		if err := json.Unmarshal(raw, &u.Status); err != nil {
			return CallUpdate{}, fmt.Errorf("decode call update status: %w", err)
		}
	}

	u.Fields = fields
	return u, nil
}

// CallEnd is the payload of a call:end event.
type CallEnd struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq,omitempty"`
}
