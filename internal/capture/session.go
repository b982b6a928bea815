// Package capture owns the microphone lifecycle of a discussion room: device
// acquisition, recording, and a sliding silence-detection window.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRequesting Status = "requesting"
	StatusRecording  Status = "recording"
	StatusStopping   Status = "stopping"
)

// SilenceEvent is the advisory "user stopped talking" signal. It never ends the session.
type SilenceEvent struct {
	Seq         int
	LastChunkAt time.Time
	Window      time.Duration
}

// Hooks observe a session. They run outside the session lock and must not block for long.
type Hooks struct {
	OnStatus  func(Status)
	OnChunk   func(Chunk)
	OnSilence func(SilenceEvent)
}

// Options configure a Session. Zero values fall back to the package defaults.
type Options struct {
	SilenceWindow time.Duration
	Recorder      RecorderConfig
	Constraints   Constraints
	Transcriber   Transcriber
	Hooks         Hooks
	Logger        *slog.Logger
}

// Summary describes one finished recording.
type Summary struct {
	Chunks         int
	Bytes          int64
	SilenceSignals int
	StartedAt      time.Time
	StoppedAt      time.Time
}

// drainTimeout bounds how long Disconnect waits for a stopped recorder to close its channel.
const drainTimeout = 2 * time.Second

type timer interface {
	Stop() bool
}

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Session is one microphone-recording lifecycle owned by a page instance.
// Idle is both the initial state and the state after every disconnect or failure.
type Session struct {
	platform  Platform
	opts      Options
	logger    *slog.Logger
	afterFunc func(time.Duration, func()) timer

	mu        sync.Mutex
	status    Status
	gen       uint64
	reqCancel context.CancelFunc
	stream    Stream
	cancel    context.CancelFunc
	runCtx    context.Context
	done      chan struct{}
	silence   timer
	lastSeq   int
	summary   Summary
}

// New returns ErrDeviceUnavailable when no capture platform is present, so callers
// only construct a session once the capability is confirmed.
func New(platform Platform, opts Options) (*Session, error) {
	if platform == nil {
		return nil, ErrDeviceUnavailable
	}
	if opts.SilenceWindow <= 0 {
		opts.SilenceWindow = DefaultSilenceWindow
	}
	if opts.Recorder.TimeSlice <= 0 {
		opts.Recorder = DefaultRecorderConfig()
	}
	if opts.Constraints.SampleRate <= 0 {
		opts.Constraints.SampleRate = opts.Recorder.SampleRate
	}
	if opts.Constraints.Channels <= 0 {
		opts.Constraints.Channels = opts.Recorder.Channels
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		platform:  platform,
		opts:      opts,
		logger:    logger,
		afterFunc: realAfterFunc,
		status:    StatusIdle,
	}, nil
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Connect acquires the device and starts recording. A call while the session is
// not Idle is a no-op that returns the current status. On failure the session is
// left Idle with no stream held.
func (s *Session) Connect(ctx context.Context) (Status, error) {
	s.mu.Lock()
	if s.status != StatusIdle {
		st := s.status
		s.mu.Unlock()
		return st, nil
	}
	s.gen++
	gen := s.gen
	reqCtx, reqCancel := context.WithCancel(ctx)
	defer reqCancel()
	s.reqCancel = reqCancel
	s.status = StatusRequesting
	s.mu.Unlock()
	s.notifyStatus(StatusRequesting)

	started := time.Now()
	stream, err := s.platform.RequestAudioStream(reqCtx, s.opts.Constraints)
	s.mu.Lock()
	aborted := s.gen != gen
	if !aborted {
		s.reqCancel = nil
	}
	s.mu.Unlock()
	if err != nil {
		if aborted {
			return s.Status(), ErrConnectAborted
		}
		err = deviceError(err)
		s.logger.Warn("microphone request failed", "error", err)
		s.resetIfCurrent(gen)
		return s.Status(), err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	chunks, err := stream.StartRecording(runCtx, s.opts.Recorder)
	if err != nil {
		cancel()
		_ = stream.Release()
		s.logger.Warn("recorder start failed", "error", err)
		s.resetIfCurrent(gen)
		return s.Status(), fmt.Errorf("start recording: %w", deviceError(err))
	}

	s.mu.Lock()
	if s.gen != gen || s.status != StatusRequesting {
		s.mu.Unlock()
		cancel()
		_ = stream.StopRecording(ctx)
		_ = stream.Release()
		return s.Status(), ErrConnectAborted
	}
	done := make(chan struct{})
	s.stream = stream
	s.cancel = cancel
	s.runCtx = runCtx
	s.done = done
	s.status = StatusRecording
	s.lastSeq = 0
	s.summary = Summary{StartedAt: time.Now().UTC()}
	s.mu.Unlock()

	s.logger.Info("recording started", "acquire_ms", time.Since(started).Milliseconds())
	s.notifyStatus(StatusRecording)
	go s.pump(gen, chunks, done)
	return StatusRecording, nil
}

// Disconnect stops the recorder, releases the device and cancels the silence
// timer. It is a no-op when Idle and safe after the recorder failed. Chunks that
// arrive afterwards are ignored.
func (s *Session) Disconnect(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	switch s.status {
	case StatusIdle, StatusStopping:
		s.mu.Unlock()
		return Summary{}, nil
	case StatusRequesting:
		// Cancelling the request frees the platform for a retry. A stream that
		// still arrives is released by the pending Connect.
		s.gen++
		s.status = StatusIdle
		reqCancel := s.reqCancel
		s.reqCancel = nil
		s.mu.Unlock()
		if reqCancel != nil {
			reqCancel()
		}
		s.notifyStatus(StatusIdle)
		return Summary{}, nil
	}

	s.gen++
	s.status = StatusStopping
	s.stopSilenceLocked()
	stream, cancel, done := s.stream, s.cancel, s.done
	s.stream, s.cancel, s.runCtx, s.done = nil, nil, nil, nil
	summary := s.summary
	s.mu.Unlock()
	s.notifyStatus(StatusStopping)

	var errs []error
	if err := stream.StopRecording(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop recording: %w", err))
	}
	if err := stream.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release stream: %w", err))
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(drainTimeout):
		s.logger.Warn("recorder did not close its chunk stream")
	}

	s.mu.Lock()
	s.status = StatusIdle
	s.mu.Unlock()
	s.notifyStatus(StatusIdle)

	summary.StoppedAt = time.Now().UTC()
	s.logger.Info("recording stopped", "chunks", summary.Chunks, "bytes", summary.Bytes, "silence_signals", summary.SilenceSignals)
	return summary, errors.Join(errs...)
}

func (s *Session) pump(gen uint64, chunks <-chan Chunk, done chan struct{}) {
	defer close(done)
	for c := range chunks {
		s.handleChunk(gen, c)
	}
	s.recorderClosed(gen)
}

func (s *Session) handleChunk(gen uint64, c Chunk) {
	s.mu.Lock()
	if s.gen != gen || s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	s.stopSilenceLocked()
	s.lastSeq++
	seq := s.lastSeq
	s.summary.Chunks++
	s.summary.Bytes += int64(len(c.PCM))
	at := c.At
	s.silence = s.afterFunc(s.opts.SilenceWindow, func() {
		s.fireSilence(gen, seq, at)
	})
	runCtx := s.runCtx
	s.mu.Unlock()

	if h := s.opts.Hooks.OnChunk; h != nil {
		h(c)
	}
	if tr := s.opts.Transcriber; tr != nil {
		if err := tr.Feed(runCtx, c); err != nil {
			s.logger.Debug("transcriber rejected chunk", "seq", c.Seq, "error", err)
		}
	}
}

func (s *Session) fireSilence(gen uint64, seq int, lastChunkAt time.Time) {
	s.mu.Lock()
	// A newer chunk or a disconnect supersedes this timer.
	if s.gen != gen || s.status != StatusRecording || s.lastSeq != seq {
		s.mu.Unlock()
		return
	}
	s.silence = nil
	s.summary.SilenceSignals++
	runCtx := s.runCtx
	s.mu.Unlock()

	ev := SilenceEvent{Seq: seq, LastChunkAt: lastChunkAt, Window: s.opts.SilenceWindow}
	s.logger.Info("user stopped talking", "seq", seq)
	if h := s.opts.Hooks.OnSilence; h != nil {
		h(ev)
	}
	if tr := s.opts.Transcriber; tr != nil {
		tr.EndOfSpeech(runCtx, ev)
	}
}

// recorderClosed handles a chunk channel that closed without Disconnect.
func (s *Session) recorderClosed(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.status != StatusRecording {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopSilenceLocked()
	stream, cancel := s.stream, s.cancel
	s.stream, s.cancel, s.runCtx, s.done = nil, nil, nil, nil
	s.status = StatusIdle
	s.mu.Unlock()

	s.logger.Warn("recorder stopped unexpectedly; releasing device")
	_ = stream.Release()
	cancel()
	s.notifyStatus(StatusIdle)
}

func (s *Session) resetIfCurrent(gen uint64) {
	s.mu.Lock()
	if s.gen != gen || s.status != StatusRequesting {
		s.mu.Unlock()
		return
	}
	s.status = StatusIdle
	s.mu.Unlock()
	s.notifyStatus(StatusIdle)
}

func (s *Session) stopSilenceLocked() {
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
}

func (s *Session) notifyStatus(st Status) {
	if h := s.opts.Hooks.OnStatus; h != nil {
		h(st)
	}
}

// deviceError keeps the two device sentinels and folds anything else into ErrDeviceUnavailable.
func deviceError(err error) error {
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
