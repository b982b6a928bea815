package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/coachroom/internal/auth"
	"github.com/antoniostano/coachroom/internal/capture"
	"github.com/antoniostano/coachroom/internal/discussion"
	"github.com/antoniostano/coachroom/internal/protocol"
	"github.com/antoniostano/coachroom/internal/reliability"
	"github.com/antoniostano/coachroom/internal/wsplatform"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
	pageCloseGrace = 5 * time.Second
	roomPollEvery  = time.Second
)

type livePage struct {
	cancel context.CancelFunc
}

// ClosePage tears down a live discussion-room page, releasing its microphone.
// It is the session manager's expire hook.
func (s *Server) ClosePage(pageID string) {
	s.mu.Lock()
	p, ok := s.pages[pageID]
	s.mu.Unlock()
	if ok {
		p.cancel()
	}
}

// CloseAll tears down every live page, e.g. on shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	pages := make([]*livePage, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, p)
	}
	s.mu.Unlock()
	for _, p := range pages {
		p.cancel()
	}
}

func (s *Server) handleRoomWS(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "id"))
	if roomID == "" {
		respondClassified(w, discussion.ErrRoomIDRequired)
		return
	}
	user, _ := auth.UserFrom(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sess := s.sessions.Create(user.ID, roomID)
	pageID := sess.ID
	logger := s.logger.With("page_id", pageID, "room_id", roomID, "user", user.ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.mu.Lock()
	s.pages[pageID] = &livePage{cancel: cancel}
	s.mu.Unlock()
	s.metrics.ActivePages.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	outbound := make(chan any, 256)
	send := func(v any) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case outbound <- v:
			return nil
		}
	}

	var recording atomic.Bool
	platform := wsplatform.New(pageID, send, s.cfg.MicRequestTimeout, logger)
	page, err := discussion.New(discussion.Config{
		ID:       pageID,
		RoomID:   roomID,
		Rooms:    s.rooms,
		Catalog:  s.catalog,
		Platform: platform,
		Capture: capture.Options{
			SilenceWindow: s.cfg.SilenceWindow,
			Recorder:      s.recorderConfig(),
			Hooks: capture.Hooks{
				OnStatus: func(st capture.Status) {
					s.observeCaptureStatus(&recording, st)
					_ = s.sessions.SetCaptureStatus(pageID, string(st))
					_ = send(protocol.SessionStatus{
						Type:      protocol.TypeSessionStatus,
						SessionID: pageID,
						Status:    string(st),
						Toggle:    discussion.ToggleLabel(st),
					})
				},
				OnChunk: func(c capture.Chunk) {
					s.metrics.AudioBytes.Add(float64(len(c.PCM)))
				},
				OnSilence: func(ev capture.SilenceEvent) {
					s.metrics.SilenceSignals.Inc()
					_ = send(protocol.SilenceDetected{
						Type:      protocol.TypeSilenceDetected,
						SessionID: pageID,
						Seq:       ev.Seq,
						WindowMs:  ev.Window.Milliseconds(),
					})
				},
			},
		},
		RecordingsDir: s.cfg.RecordingsDir,
		Logger:        s.logger.With("user", user.ID),
	})
	if err != nil {
		logger.Error("page setup failed", "error", err)
		s.endPage(pageID)
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, conn, outbound)
	}()

	_ = send(protocol.SessionStatus{
		Type:      protocol.TypeSessionStatus,
		SessionID: pageID,
		Status:    string(capture.StatusIdle),
		Toggle:    discussion.ToggleConnect,
	})

	var actions sync.WaitGroup
	actions.Add(1)
	go func() {
		defer actions.Done()
		s.watchRoom(ctx, page, pageID, send)
	}()
	s.readLoop(ctx, conn, pageID, platform, func(action string) {
		actions.Add(1)
		go func() {
			defer actions.Done()
			s.runAction(ctx, page, pageID, action, send)
		}()
	}, send)

	cancel()
	actions.Wait()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), pageCloseGrace)
	if err := page.Close(closeCtx); err != nil {
		logger.Warn("capture release on page close", "error", err)
	}
	closeCancel()
	<-writerDone

	s.endPage(pageID)
	logger.Info("page closed")
}

// watchRoom sends the page's room view, then polls until a loading room
// resolves and sends it once more. A store error is reported and ends the watch.
func (s *Server) watchRoom(ctx context.Context, page *discussion.Page, pageID string, send wsplatform.Sender) {
	tick := time.NewTicker(roomPollEvery)
	defer tick.Stop()
	sentLoading := false
	for {
		view, err := page.Load(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c := reliability.Classify(err)
			s.metrics.RoomStoreErrors.WithLabelValues("get", c.Code).Inc()
			_ = send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: pageID,
				Code:      c.Code,
				Source:    "rooms",
				Retryable: c.Retryable,
				Detail:    err.Error(),
			})
			return
		}
		if !view.Loading || !sentLoading {
			view.ActivePages = len(s.sessions.ActiveForRoom(view.RoomID))
			_ = send(protocol.RoomView{Type: protocol.TypeRoomView, SessionID: pageID, View: view})
			sentLoading = true
		}
		if !view.Loading {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func (s *Server) endPage(pageID string) {
	s.mu.Lock()
	delete(s.pages, pageID)
	s.mu.Unlock()
	_, _ = s.sessions.End(pageID)
	s.metrics.ActivePages.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func (s *Server) recorderConfig() capture.RecorderConfig {
	rc := capture.DefaultRecorderConfig()
	if s.cfg.RecorderTimeSlice > 0 {
		rc.TimeSlice = s.cfg.RecorderTimeSlice
	}
	if s.cfg.RecorderSampleRate > 0 {
		rc.SampleRate = s.cfg.RecorderSampleRate
	}
	return rc
}

func (s *Server) observeCaptureStatus(recording *atomic.Bool, st capture.Status) {
	s.metrics.CaptureEvents.WithLabelValues(string(st)).Inc()
	switch st {
	case capture.StatusRecording:
		if recording.CompareAndSwap(false, true) {
			s.metrics.ActiveCaptures.Inc()
		}
	case capture.StatusIdle:
		if recording.CompareAndSwap(true, false) {
			s.metrics.ActiveCaptures.Dec()
		}
	}
}

// runAction performs a page toggle. Connect blocks until the browser answers
// the microphone request, so actions run off the read loop.
func (s *Server) runAction(ctx context.Context, page *discussion.Page, pageID, action string, send wsplatform.Sender) {
	switch action {
	case protocol.ActionConnect:
		started := time.Now()
		_, err := page.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c := reliability.Classify(err)
			s.metrics.CaptureEvents.WithLabelValues("connect_" + c.Code).Inc()
			_ = send(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: pageID,
				Code:      c.Code,
				Source:    "capture",
				Retryable: c.Retryable,
				Detail:    err.Error(),
			})
			return
		}
		s.metrics.ObserveDeviceAcquire(time.Since(started))
	case protocol.ActionDisconnect:
		if _, err := page.Disconnect(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("disconnect reported errors", "page_id", pageID, "error", err)
		}
	}
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, pageID string, platform *wsplatform.Platform, dispatch func(action string), send wsplatform.Sender) {
	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_ = s.sessions.Touch(pageID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.sendError(send, pageID, "invalid_client_message", err)
			continue
		}
		switch m := parsed.(type) {
		case protocol.ClientAudioChunk:
			s.metrics.ObserveInboundMessage(string(m.Type))
			if err := platform.HandleChunk(m); err != nil {
				s.sendError(send, pageID, "invalid_audio_chunk", err)
			}
		case protocol.ClientControl:
			s.metrics.ObserveInboundMessage(string(m.Type) + ":" + m.Action)
			if !platform.HandleControl(m) {
				dispatch(m.Action)
			}
		}
	}
}

func (s *Server) sendError(send wsplatform.Sender, pageID, code string, err error) {
	_ = send(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: pageID,
		Code:      code,
		Source:    "gateway",
		Detail:    err.Error(),
	})
}

// writeLoop is the only writer of data frames on conn. When ctx ends it sends
// a close frame and closes the socket, which also unblocks the reader.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, outbound <-chan any) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "page closed"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				s.metrics.WSWriteErrors.Inc()
			}
		case msg := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.WSWriteErrors.Inc()
				_ = conn.Close()
				continue
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveOutboundMessage(string(t))
			}
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.SessionStatus:
		return m.Type, true
	case protocol.MicRequest:
		return m.Type, true
	case protocol.RecorderStart:
		return m.Type, true
	case protocol.RecorderStop:
		return m.Type, true
	case protocol.SilenceDetected:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	case protocol.RoomView:
		return m.Type, true
	default:
		return "", false
	}
}
