// Package pulsemic captures from a local PulseAudio source. It backs the
// mic-check command and any deployment where the microphone is attached to the
// server itself.
package pulsemic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"

	"github.com/antoniostano/coachroom/internal/capture"
)

const (
	fragmentBytes = 640 // 20ms @ 16kHz mono s16
	chunkBuffer   = 128
	appName       = "coachroom"
)

// Platform opens PulseAudio record streams. An empty SourceID selects the
// server's default source.
type Platform struct {
	SourceID string
}

func (p Platform) RequestAudioStream(_ context.Context, c capture.Constraints) (capture.Stream, error) {
	if c.Channels > 1 {
		return nil, fmt.Errorf("%w: only mono capture is supported", capture.ErrDeviceUnavailable)
	}
	client, err := pulse.NewClient(
		pulse.ClientApplicationName(appName),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: connect pulse server: %v", capture.ErrDeviceUnavailable, err)
	}

	id := c.DeviceID
	if id == "" {
		id = p.SourceID
	}
	var source *pulse.Source
	if id == "" {
		source, err = client.DefaultSource()
	} else {
		source, err = client.SourceByID(id)
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: resolve source %q: %v", capture.ErrDeviceUnavailable, id, err)
	}
	return &stream{client: client, source: source}, nil
}

type stream struct {
	client *pulse.Client
	source *pulse.Source

	mu        sync.Mutex
	rec       *pulse.RecordStream
	slicer    *slicer
	chunks    chan capture.Chunk
	stopCh    chan struct{}
	recording bool
	released  bool
	inflight  sync.WaitGroup
}

func (s *stream) StartRecording(_ context.Context, cfg capture.RecorderConfig) (<-chan capture.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, fmt.Errorf("%w: stream released", capture.ErrDeviceUnavailable)
	}
	if s.recording {
		return nil, errors.New("recorder already started")
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = capture.DefaultSampleRate
	}
	s.slicer = newSlicer(rate, cfg.TimeSlice)
	s.chunks = make(chan capture.Chunk, chunkBuffer)
	s.stopCh = make(chan struct{})

	writer := pulse.NewWriter(writerFunc(s.onPCM), pulseproto.FormatInt16LE)
	rec, err := s.client.NewRecord(
		writer,
		pulse.RecordSource(s.source),
		pulse.RecordMono,
		pulse.RecordSampleRate(rate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("coachroom discussion"),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create record stream: %v", capture.ErrDeviceUnavailable, err)
	}
	s.rec = rec
	s.recording = true
	rec.Start()
	return s.chunks, nil
}

// StopRecording halts the record stream, emits the partial final slice and
// closes the chunk channel exactly once.
func (s *stream) StopRecording(context.Context) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil
	}
	s.recording = false
	close(s.stopCh)
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()

	rec.Stop()
	rec.Close()
	s.inflight.Wait()

	s.mu.Lock()
	tail, ok := s.slicer.Flush(time.Now())
	s.mu.Unlock()
	if ok {
		select {
		case s.chunks <- tail:
		default:
		}
	}
	close(s.chunks)
	return nil
}

func (s *stream) Release() error {
	_ = s.StopRecording(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	s.client.Close()
	return nil
}

func (s *stream) onPCM(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return 0, io.EOF
	}
	s.inflight.Add(1)
	ready := s.slicer.Push(buf, time.Now())
	stopCh, chunks := s.stopCh, s.chunks
	s.mu.Unlock()
	defer s.inflight.Done()

	for _, c := range ready {
		select {
		case <-stopCh:
			return 0, io.EOF
		case chunks <- c:
		}
	}
	return len(buf), nil
}

// slicer groups PCM16 mono bytes into one chunk per recorder time slice.
type slicer struct {
	size       int
	sampleRate int
	seq        int
	pending    []byte
}

func newSlicer(sampleRate int, slice time.Duration) *slicer {
	if slice <= 0 {
		slice = capture.DefaultTimeSlice
	}
	size := int(int64(sampleRate) * 2 * int64(slice) / int64(time.Second))
	if size%2 != 0 {
		size++
	}
	if size < 2 {
		size = 2
	}
	return &slicer{size: size, sampleRate: sampleRate}
}

func (s *slicer) Push(buf []byte, at time.Time) []capture.Chunk {
	s.pending = append(s.pending, buf...)
	var out []capture.Chunk
	for len(s.pending) >= s.size {
		pcm := make([]byte, s.size)
		copy(pcm, s.pending[:s.size])
		s.pending = s.pending[s.size:]
		s.seq++
		out = append(out, capture.Chunk{Seq: s.seq, PCM: pcm, SampleRate: s.sampleRate, At: at})
	}
	return out
}

func (s *slicer) Flush(at time.Time) (capture.Chunk, bool) {
	if len(s.pending) == 0 {
		return capture.Chunk{}, false
	}
	pcm := append([]byte(nil), s.pending...)
	s.pending = nil
	s.seq++
	return capture.Chunk{Seq: s.seq, PCM: pcm, SampleRate: s.sampleRate, At: at}, true
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
