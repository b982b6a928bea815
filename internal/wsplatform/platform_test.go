package wsplatform

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antoniostano/coachroom/internal/capture"
	"github.com/antoniostano/coachroom/internal/logging"
	"github.com/antoniostano/coachroom/internal/protocol"
)

type browser struct {
	frames chan any
}

func newBrowser() *browser {
	return &browser{frames: make(chan any, 16)}
}

func (b *browser) send(v any) error {
	b.frames <- v
	return nil
}

func (b *browser) next(t *testing.T) any {
	t.Helper()
	select {
	case f := <-b.frames:
		return f
	case <-time.After(time.Second):
		t.Fatalf("no frame sent")
		return nil
	}
}

func control(action, detail string) protocol.ClientControl {
	return protocol.ClientControl{Type: protocol.TypeClientControl, SessionID: "p1", Action: action, Detail: detail}
}

func requestAsync(p *Platform, ctx context.Context) (chan capture.Stream, chan error) {
	streams := make(chan capture.Stream, 1)
	errs := make(chan error, 1)
	go func() {
		s, err := p.RequestAudioStream(ctx, capture.Constraints{SampleRate: 16000, Channels: 1})
		streams <- s
		errs <- err
	}()
	return streams, errs
}

func TestMicDeniedMapsToPermissionDenied(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, time.Second, logging.Discard())

	_, errs := requestAsync(p, context.Background())
	req, ok := b.next(t).(protocol.MicRequest)
	require.True(t, ok)
	require.Equal(t, 16000, req.SampleRate)

	require.True(t, p.HandleControl(control(protocol.ActionMicDenied, "NotAllowedError")))
	err := <-errs
	require.ErrorIs(t, err, capture.ErrPermissionDenied)
	require.ErrorContains(t, err, "NotAllowedError")
}

func TestMicUnavailableMapsToDeviceUnavailable(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, time.Second, logging.Discard())

	_, errs := requestAsync(p, context.Background())
	b.next(t)
	p.HandleControl(control(protocol.ActionMicUnavailable, ""))
	require.ErrorIs(t, <-errs, capture.ErrDeviceUnavailable)
}

func TestUnansweredRequestTimesOutAsDenied(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, 20*time.Millisecond, logging.Discard())

	_, err := p.RequestAudioStream(context.Background(), capture.Constraints{})
	require.ErrorIs(t, err, capture.ErrPermissionDenied)
}

func TestSendFailureIsDeviceUnavailable(t *testing.T) {
	p := New("p1", func(any) error { return errors.New("socket closed") }, time.Second, logging.Discard())
	_, err := p.RequestAudioStream(context.Background(), capture.Constraints{})
	require.ErrorIs(t, err, capture.ErrDeviceUnavailable)
}

func TestPageActionsAreNotHandled(t *testing.T) {
	p := New("p1", newBrowser().send, time.Second, logging.Discard())
	require.False(t, p.HandleControl(control(protocol.ActionConnect, "")))
	require.False(t, p.HandleControl(control(protocol.ActionDisconnect, "")))
}

func TestRecordFlushAndStop(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, time.Second, logging.Discard())

	streams, errs := requestAsync(p, context.Background())
	b.next(t)
	p.HandleControl(control(protocol.ActionMicGranted, ""))
	require.NoError(t, <-errs)
	st := <-streams

	chunks, err := st.StartRecording(context.Background(), capture.DefaultRecorderConfig())
	require.NoError(t, err)
	start, ok := b.next(t).(protocol.RecorderStart)
	require.True(t, ok)
	require.Equal(t, int64(250), start.TimeSliceMs)
	require.Equal(t, 16000, start.SampleRate)

	pcm := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})
	require.NoError(t, p.HandleChunk(protocol.ClientAudioChunk{Seq: 1, PCM16Base64: pcm, SampleRate: 16000, TSMs: 1000}))
	c := <-chunks
	require.Equal(t, 1, c.Seq)
	require.Equal(t, []byte{1, 0, 2, 0}, c.PCM)
	require.Equal(t, time.UnixMilli(1000), c.At)

	stopped := make(chan error, 1)
	go func() { stopped <- st.StopRecording(context.Background()) }()
	_, ok = b.next(t).(protocol.RecorderStop)
	require.True(t, ok)

	// The flushed tail arrives before the acknowledgement.
	require.NoError(t, p.HandleChunk(protocol.ClientAudioChunk{Seq: 2, PCM16Base64: pcm, SampleRate: 16000}))
	p.HandleControl(control(protocol.ActionRecorderStopped, ""))
	require.NoError(t, <-stopped)

	tail, open := <-chunks
	require.True(t, open)
	require.Equal(t, 2, tail.Seq)
	_, open = <-chunks
	require.False(t, open)

	require.NoError(t, st.Release())
	require.NoError(t, st.Release())

	// Late chunks after release are dropped.
	require.NoError(t, p.HandleChunk(protocol.ClientAudioChunk{Seq: 3, PCM16Base64: pcm, SampleRate: 16000}))
}

func TestHandleChunkRejectsBadBase64(t *testing.T) {
	p := New("p1", newBrowser().send, time.Second, logging.Discard())
	err := p.HandleChunk(protocol.ClientAudioChunk{Seq: 1, PCM16Base64: "!!", SampleRate: 16000})
	require.Error(t, err)
}

func TestCaptureSessionOverWebsocketPlatform(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, time.Second, logging.Discard())
	s, err := capture.New(p, capture.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	go func() {
		for f := range b.frames {
			switch f.(type) {
			case protocol.MicRequest:
				p.HandleControl(control(protocol.ActionMicGranted, ""))
			case protocol.RecorderStop:
				p.HandleControl(control(protocol.ActionRecorderStopped, ""))
			}
		}
	}()
	defer close(b.frames)

	st, err := s.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, capture.StatusRecording, st)

	_, err = s.Disconnect(context.Background())
	require.NoError(t, err)
	require.Equal(t, capture.StatusIdle, s.Status())
}

func TestReconnectAfterDisconnectDuringMicRequest(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, time.Minute, logging.Discard())
	s, err := capture.New(p, capture.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	first := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		first <- err
	}()
	_, ok := b.next(t).(protocol.MicRequest)
	require.True(t, ok)

	_, err = s.Disconnect(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, <-first, capture.ErrConnectAborted)
	require.Equal(t, capture.StatusIdle, s.Status())

	second := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		second <- err
	}()
	_, ok = b.next(t).(protocol.MicRequest)
	require.True(t, ok, "retry must reach the browser")
	require.True(t, p.HandleControl(control(protocol.ActionMicGranted, "")))
	require.NoError(t, <-second)
	require.Equal(t, capture.StatusRecording, s.Status())

	_, ok = b.next(t).(protocol.RecorderStart)
	require.True(t, ok)

	stopped := make(chan error, 1)
	go func() {
		_, err := s.Disconnect(context.Background())
		stopped <- err
	}()
	_, ok = b.next(t).(protocol.RecorderStop)
	require.True(t, ok)
	p.HandleControl(control(protocol.ActionRecorderStopped, ""))
	require.NoError(t, <-stopped)
	require.Equal(t, capture.StatusIdle, s.Status())
}

func TestCancelledRequestDoesNotBlockTheNext(t *testing.T) {
	b := newBrowser()
	p := New("p1", b.send, time.Minute, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	_, firstErrs := requestAsync(p, ctx)
	b.next(t)
	cancel()

	streams, errs := requestAsync(p, context.Background())
	_, ok := b.next(t).(protocol.MicRequest)
	require.True(t, ok)
	require.ErrorIs(t, <-firstErrs, context.Canceled)

	require.True(t, p.HandleControl(control(protocol.ActionMicGranted, "")))
	require.NoError(t, <-errs)
	require.NotNil(t, <-streams)
}
