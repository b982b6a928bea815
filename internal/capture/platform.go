package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPermissionDenied means the user refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means there is no usable input device or capture capability.
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	// ErrConnectAborted means Disconnect ran while the device request was pending.
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)

const (
	DefaultSilenceWindow = 2000 * time.Millisecond
	DefaultTimeSlice     = 250 * time.Millisecond
	DefaultSampleRate    = 16000
)

// Constraints are passed to the platform when asking for an input stream.
type Constraints struct {
	DeviceID   string
	SampleRate int
	Channels   int
}

// RecorderConfig controls how a stream slices audio into chunks.
type RecorderConfig struct {
	MimeType      string
	TimeSlice     time.Duration
	SampleRate    int
	Channels      int
	BufferSize    int
	BitsPerSecond int
}

func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		MimeType:      "audio/webm;codecs=pcm",
		TimeSlice:     DefaultTimeSlice,
		SampleRate:    DefaultSampleRate,
		Channels:      1,
		BufferSize:    4096,
		BitsPerSecond: 128000,
	}
}

// Chunk is one recorder slice of PCM16LE audio.
type Chunk struct {
	Seq        int
	PCM        []byte
	SampleRate int
	At         time.Time
}

// Platform acquires audio input streams (browser getUserMedia, PulseAudio, fakes).
// RequestAudioStream should return once ctx is cancelled; Disconnect relies on
// that to free the platform for the next Connect.
type Platform interface {
	RequestAudioStream(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is an acquired input device handle.
//
// StartRecording returns a channel that receives chunks every time slice until
// StopRecording flushes and closes it. Release gives the device back and must be
// safe to call more than once.
type Stream interface {
	StartRecording(ctx context.Context, cfg RecorderConfig) (<-chan Chunk, error)
	StopRecording(ctx context.Context) error
	Release() error
}

// Transcriber is an optional consumer of captured speech. Nothing in this module
// implements it yet.
type Transcriber interface {
	Feed(ctx context.Context, c Chunk) error
	EndOfSpeech(ctx context.Context, ev SilenceEvent)
}
