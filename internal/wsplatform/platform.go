// Package wsplatform implements capture.Platform on top of a browser connected
// through the discussion-room websocket. The browser owns getUserMedia and the
// MediaRecorder; the server drives it with mic_request / recorder_start /
// recorder_stop frames and receives PCM16 chunks back.
package wsplatform

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antoniostano/coachroom/internal/capture"
	"github.com/antoniostano/coachroom/internal/protocol"
)

const (
	defaultGrantTimeout = 30 * time.Second
	stopAckTimeout      = 2 * time.Second
	chunkBuffer         = 64
)

var errRequestPending = errors.New("microphone request already pending")

type micRequest struct {
	ctx   context.Context
	reply chan error
}

// Sender writes one server frame to the browser.
type Sender func(v any) error

// Platform answers capture requests through one browser page. At most one
// microphone request is outstanding at a time.
type Platform struct {
	sessionID    string
	send         Sender
	grantTimeout time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	pending *micRequest
	stream  *stream
}

func New(sessionID string, send Sender, grantTimeout time.Duration, logger *slog.Logger) *Platform {
	if grantTimeout <= 0 {
		grantTimeout = defaultGrantTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{
		sessionID:    sessionID,
		send:         send,
		grantTimeout: grantTimeout,
		logger:       logger,
	}
}

// RequestAudioStream sends mic_request and waits for the browser's answer. An
// unanswered request counts as a refusal.
func (p *Platform) RequestAudioStream(ctx context.Context, c capture.Constraints) (capture.Stream, error) {
	p.mu.Lock()
	// A request whose caller has given up no longer blocks a new one.
	if p.pending != nil && p.pending.ctx.Err() == nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, errRequestPending)
	}
	req := &micRequest{ctx: ctx, reply: make(chan error, 1)}
	p.pending = req
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.pending == req {
			p.pending = nil
		}
		p.mu.Unlock()
	}()

	err := p.send(protocol.MicRequest{
		Type:       protocol.TypeMicRequest,
		SessionID:  p.sessionID,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
		DeviceID:   c.DeviceID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: send mic_request: %v", capture.ErrDeviceUnavailable, err)
	}

	t := time.NewTimer(p.grantTimeout)
	defer t.Stop()
	select {
	case err := <-req.reply:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
		return nil, fmt.Errorf("%w: no answer within %s", capture.ErrPermissionDenied, p.grantTimeout)
	}

	s := &stream{platform: p}
	p.mu.Lock()
	p.stream = s
	p.mu.Unlock()
	return s, nil
}

// HandleControl routes the browser's answers. It reports false for actions that
// belong to the page (connect, disconnect).
func (p *Platform) HandleControl(msg protocol.ClientControl) bool {
	switch msg.Action {
	case protocol.ActionMicGranted:
		p.answer(nil)
	case protocol.ActionMicDenied:
		p.answer(detailed(capture.ErrPermissionDenied, msg.Detail))
	case protocol.ActionMicUnavailable:
		p.answer(detailed(capture.ErrDeviceUnavailable, msg.Detail))
	case protocol.ActionRecorderStopped:
		if s := p.current(); s != nil {
			s.ackStopped()
		}
	default:
		return false
	}
	return true
}

// HandleChunk decodes one audio frame and hands it to the recording stream.
// Chunks with no active recorder are dropped.
func (p *Platform) HandleChunk(msg protocol.ClientAudioChunk) error {
	pcm, err := base64.StdEncoding.DecodeString(msg.PCM16Base64)
	if err != nil {
		return fmt.Errorf("decode pcm16_base64: %w", err)
	}
	s := p.current()
	if s == nil {
		return nil
	}
	at := time.Now()
	if msg.TSMs > 0 {
		at = time.UnixMilli(msg.TSMs)
	}
	s.deliver(capture.Chunk{Seq: msg.Seq, PCM: pcm, SampleRate: msg.SampleRate, At: at}, p.logger)
	return nil
}

func (p *Platform) answer(err error) {
	p.mu.Lock()
	req := p.pending
	p.mu.Unlock()
	if req == nil {
		p.logger.Debug("microphone answer without pending request", "error", err)
		return
	}
	select {
	case req.reply <- err:
	default:
	}
}

func (p *Platform) current() *stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

func (p *Platform) forget(s *stream) {
	p.mu.Lock()
	if p.stream == s {
		p.stream = nil
	}
	p.mu.Unlock()
}

func detailed(sentinel error, detail string) error {
	if detail == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, detail)
}

type stream struct {
	platform *Platform

	mu        sync.Mutex
	chunks    chan capture.Chunk
	recording bool
	released  bool
	stopAck   chan struct{}
	dropped   int
}

func (s *stream) StartRecording(_ context.Context, cfg capture.RecorderConfig) (<-chan capture.Chunk, error) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: stream released", capture.ErrDeviceUnavailable)
	}
	if s.recording {
		s.mu.Unlock()
		return nil, errors.New("recorder already started")
	}
	s.chunks = make(chan capture.Chunk, chunkBuffer)
	s.stopAck = make(chan struct{}, 1)
	s.recording = true
	s.dropped = 0
	chunks := s.chunks
	s.mu.Unlock()

	err := s.platform.send(protocol.RecorderStart{
		Type:        protocol.TypeRecorderStart,
		SessionID:   s.platform.sessionID,
		TimeSliceMs: cfg.TimeSlice.Milliseconds(),
		SampleRate:  cfg.SampleRate,
		Channels:    cfg.Channels,
		MimeType:    cfg.MimeType,
		BufferSize:  cfg.BufferSize,
	})
	if err != nil {
		s.closeChunks()
		return nil, fmt.Errorf("send recorder_start: %w", err)
	}
	return chunks, nil
}

// StopRecording asks the browser to flush and waits for recorder_stopped, so the
// final partial chunk is delivered before the channel closes.
func (s *stream) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return nil
	}
	ack := s.stopAck
	s.mu.Unlock()

	sendErr := s.platform.send(protocol.RecorderStop{
		Type:      protocol.TypeRecorderStop,
		SessionID: s.platform.sessionID,
	})
	if sendErr == nil {
		t := time.NewTimer(stopAckTimeout)
		select {
		case <-ack:
		case <-ctx.Done():
		case <-t.C:
			s.platform.logger.Warn("browser did not acknowledge recorder_stop")
		}
		t.Stop()
	}
	s.closeChunks()
	if sendErr != nil {
		return fmt.Errorf("send recorder_stop: %w", sendErr)
	}
	return nil
}

func (s *stream) Release() error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()
	s.closeChunks()
	s.platform.forget(s)
	return nil
}

func (s *stream) deliver(c capture.Chunk, logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording {
		return
	}
	select {
	case s.chunks <- c:
	default:
		s.dropped++
		logger.Warn("audio chunk dropped; consumer is behind", "seq", c.Seq, "dropped", s.dropped)
	}
}

func (s *stream) ackStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopAck == nil {
		return
	}
	select {
	case s.stopAck <- struct{}{}:
	default:
	}
}

func (s *stream) closeChunks() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recording {
		s.recording = false
		close(s.chunks)
	}
}
