package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageAudioChunk(t *testing.T) {
	raw := []byte(`{"type":"client_audio_chunk","session_id":"p1","seq":1,"pcm16_base64":"AQID","sample_rate":16000,"ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	audio, ok := msg.(ClientAudioChunk)
	if !ok {
		t.Fatalf("message type = %T, want ClientAudioChunk", msg)
	}
	if audio.SessionID != "p1" || audio.SampleRate != 16000 || audio.Seq != 1 {
		t.Fatalf("unexpected audio chunk: %+v", audio)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageControlActions(t *testing.T) {
	for _, action := range []string{
		ActionConnect, ActionDisconnect, ActionMicGranted,
		ActionMicDenied, ActionMicUnavailable, ActionRecorderStopped,
	} {
		raw := []byte(`{"type":"client_control","session_id":"p1","action":"` + action + `","detail":"NotAllowedError","ts_ms":456}`)
		msg, err := ParseClientMessage(raw)
		if err != nil {
			t.Fatalf("ParseClientMessage(%s) error = %v", action, err)
		}
		control, ok := msg.(ClientControl)
		if !ok {
			t.Fatalf("message type = %T, want ClientControl", msg)
		}
		if control.Action != action {
			t.Fatalf("Action = %q, want %q", control.Action, action)
		}
		if control.TSMs != 456 || control.Detail != "NotAllowedError" {
			t.Fatalf("unexpected client control: %+v", control)
		}
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_control","session_id":"p1","action":"approve_task_step"}`))
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("error = %v, want ErrUnknownAction", err)
	}
}

func TestParseClientMessageRejectsInvalidAudioChunk(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"client_audio_chunk","session_id":"","pcm16_base64":"","sample_rate":0}`))
	if err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParseClientMessageRejectsBadJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestServerFramesCarryType(t *testing.T) {
	raw, err := json.Marshal(SilenceDetected{Type: TypeSilenceDetected, SessionID: "p1", Seq: 3, WindowMs: 2000})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if env.Type != TypeSilenceDetected {
		t.Fatalf("Type = %q, want %q", env.Type, TypeSilenceDetected)
	}
}

func BenchmarkParseClientMessageAudioChunk(b *testing.B) {
	raw := []byte(`{"type":"client_audio_chunk","session_id":"p1","seq":7,"pcm16_base64":"AQIDBAUGBwgJCgsMDQ4P","sample_rate":16000,"ts_ms":123456}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(ClientAudioChunk); !ok {
			b.Fatalf("message type = %T, want ClientAudioChunk", msg)
		}
	}
}
