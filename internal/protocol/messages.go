package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientAudioChunk MessageType = "client_audio_chunk"
	TypeClientControl    MessageType = "client_control"
	TypeSessionStatus    MessageType = "session_status"
	TypeMicRequest       MessageType = "mic_request"
	TypeRecorderStart    MessageType = "recorder_start"
	TypeRecorderStop     MessageType = "recorder_stop"
	TypeSilenceDetected  MessageType = "silence_detected"
	TypeErrorEvent       MessageType = "error_event"
	TypeRoomView         MessageType = "room_view"
)

// Client control actions.
const (
	ActionConnect         = "connect"
	ActionDisconnect      = "disconnect"
	ActionMicGranted      = "mic_granted"
	ActionMicDenied       = "mic_denied"
	ActionMicUnavailable  = "mic_unavailable"
	ActionRecorderStopped = "recorder_stopped"
)

var (
	ErrUnsupportedType = errors.New("unsupported message type")
	ErrUnknownAction   = errors.New("unknown control action")
)

var clientActions = map[string]struct{}{
	ActionConnect:         {},
	ActionDisconnect:      {},
	ActionMicGranted:      {},
	ActionMicDenied:       {},
	ActionMicUnavailable:  {},
	ActionRecorderStopped: {},
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientAudioChunk struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	Seq         int         `json:"seq"`
	PCM16Base64 string      `json:"pcm16_base64"`
	SampleRate  int         `json:"sample_rate"`
	TSMs        int64       `json:"ts_ms"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Detail    string      `json:"detail,omitempty"`
	TSMs      int64       `json:"ts_ms,omitempty"`
}

// SessionStatus reports the capture state and the label of the toggle button.
type SessionStatus struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Status    string      `json:"status"`
	Toggle    string      `json:"toggle"`
}

// MicRequest asks the browser to call getUserMedia with the given constraints.
type MicRequest struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	SampleRate int         `json:"sample_rate"`
	Channels   int         `json:"channels"`
	DeviceID   string      `json:"device_id,omitempty"`
}

type RecorderStart struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	TimeSliceMs int64       `json:"time_slice_ms"`
	SampleRate  int         `json:"sample_rate"`
	Channels    int         `json:"channels"`
	MimeType    string      `json:"mime_type"`
	BufferSize  int         `json:"buffer_size"`
}

type RecorderStop struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type SilenceDetected struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Seq       int         `json:"seq"`
	WindowMs  int64       `json:"window_ms"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// RoomView carries the page's view of its room. View is sent while the room is
// still loading and again once it resolves.
type RoomView struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	View      any         `json:"view"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientAudioChunk:
		var msg ClientAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid client_audio_chunk")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Action == "" {
			return nil, errors.New("invalid client_control")
		}
		if _, ok := clientActions[msg.Action]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
