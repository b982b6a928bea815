// Package discussion models one discussion-room page instance: the room it
// shows, the resolved expert persona, and the capture session it owns.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/antoniostano/coachroom/internal/audio"
	"github.com/antoniostano/coachroom/internal/capture"
	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/rooms"
)

// ErrRoomIDRequired is returned when a page is opened without a room id.
var ErrRoomIDRequired = errors.New("room id is required")

// Labels of the connect/disconnect toggle.
const (
	ToggleConnect    = "Connect"
	ToggleDisconnect = "Disconnect"
)

// RoomReader is the read side of rooms.Store.
type RoomReader interface {
	Get(ctx context.Context, id string) (rooms.Room, bool, error)
}

// Catalog resolves the persona and coaching option a room names.
type Catalog interface {
	Expert(name string) (catalog.Persona, bool)
	Option(name string) (catalog.CoachingOption, bool)
}

// Config describes one page instance. Platform may be nil.
type Config struct {
	ID            string
	RoomID        string
	Rooms         RoomReader
	Catalog       Catalog
	Platform      capture.Platform
	Capture       capture.Options
	RecordingsDir string
	Logger        *slog.Logger
}

// View is what the room page renders.
type View struct {
	PageID         string                  `json:"page_id"`
	RoomID         string                  `json:"room_id"`
	Loading        bool                    `json:"loading"`
	Room           *rooms.Room             `json:"room,omitempty"`
	Persona        *catalog.Persona        `json:"persona,omitempty"`
	PersonaMissing bool                    `json:"persona_missing"`
	Option         *catalog.CoachingOption `json:"coaching_option,omitempty"`
	Status         capture.Status          `json:"status"`
	Toggle         string                  `json:"toggle"`
	ActivePages    int                     `json:"active_pages"`
}

// Page owns exactly one capture session. Sessions are never shared between pages.
type Page struct {
	cfg     Config
	logger  *slog.Logger
	session *capture.Session

	mu        sync.Mutex
	room      *rooms.Room
	recording *audio.Recording
}

// New builds the page. A nil platform is allowed: the page still renders and
// Connect reports ErrDeviceUnavailable.
func New(cfg Config) (*Page, error) {
	if cfg.RoomID == "" {
		return nil, ErrRoomIDRequired
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("page_id", cfg.ID, "room_id", cfg.RoomID)
	p := &Page{cfg: cfg, logger: logger}

	if cfg.Platform != nil {
		opts := cfg.Capture
		opts.Logger = logger
		onChunk := opts.Hooks.OnChunk
		opts.Hooks.OnChunk = func(c capture.Chunk) {
			p.mu.Lock()
			rec := p.recording
			p.mu.Unlock()
			if rec != nil {
				rec.Append(c.PCM)
			}
			if onChunk != nil {
				onChunk(c)
			}
		}
		s, err := capture.New(cfg.Platform, opts)
		if err != nil {
			return nil, err
		}
		p.session = s
	}
	return p, nil
}

func (p *Page) ID() string { return p.cfg.ID }

func (p *Page) RoomID() string { return p.cfg.RoomID }

// Load reads the room once it exists and then keeps that copy. An absent room
// yields a loading view; store errors are returned with the loading view.
func (p *Page) Load(ctx context.Context) (View, error) {
	p.mu.Lock()
	room := p.room
	p.mu.Unlock()

	if room == nil {
		r, found, err := p.cfg.Rooms.Get(ctx, p.cfg.RoomID)
		if err != nil {
			return p.view(nil), fmt.Errorf("load room %s: %w", p.cfg.RoomID, err)
		}
		if !found {
			return p.view(nil), nil
		}
		room = &r
		p.mu.Lock()
		p.room = room
		p.mu.Unlock()
	}
	return p.view(room), nil
}

func (p *Page) view(room *rooms.Room) View {
	st := p.Status()
	v := View{
		PageID:  p.cfg.ID,
		RoomID:  p.cfg.RoomID,
		Loading: room == nil,
		Room:    room,
		Status:  st,
		Toggle:  ToggleLabel(st),
	}
	if room == nil {
		return v
	}
	persona, option, missing := resolve(*room, p.cfg.Catalog)
	v.Persona, v.Option, v.PersonaMissing = persona, option, missing
	if missing {
		p.logger.Warn("expert persona not found", "expert", room.ExpertName)
	}
	return v
}

// resolve finds the room's persona and coaching option. A missing persona is
// reported, not treated as an error.
func resolve(room rooms.Room, c Catalog) (persona *catalog.Persona, option *catalog.CoachingOption, personaMissing bool) {
	if c == nil {
		return nil, nil, true
	}
	if ps, ok := c.Expert(room.ExpertName); ok {
		persona = &ps
	} else {
		personaMissing = true
	}
	if opt, ok := c.Option(room.CoachingOption); ok {
		option = &opt
	}
	return persona, option, personaMissing
}

func (p *Page) Status() capture.Status {
	if p.session == nil {
		return capture.StatusIdle
	}
	return p.session.Status()
}

// ToggleLabel is the toggle text for a capture status.
func ToggleLabel(st capture.Status) string {
	if st == capture.StatusIdle {
		return ToggleConnect
	}
	return ToggleDisconnect
}

// Connect starts capture, opening a fresh recording when recordings are kept.
func (p *Page) Connect(ctx context.Context) (capture.Status, error) {
	if p.session == nil {
		return capture.StatusIdle, capture.ErrDeviceUnavailable
	}
	if p.cfg.RecordingsDir != "" && p.session.Status() == capture.StatusIdle {
		rec := p.cfg.Capture.Recorder
		if rec.SampleRate <= 0 {
			rec = capture.DefaultRecorderConfig()
		}
		p.mu.Lock()
		p.recording = audio.NewRecording(rec.SampleRate, rec.Channels)
		p.mu.Unlock()
	}
	return p.session.Connect(ctx)
}

// Disconnect stops capture and, when a recordings directory is configured,
// writes the captured audio as <page id>.wav.
func (p *Page) Disconnect(ctx context.Context) (capture.Summary, error) {
	if p.session == nil {
		return capture.Summary{}, nil
	}
	summary, err := p.session.Disconnect(ctx)

	p.mu.Lock()
	rec := p.recording
	p.recording = nil
	p.mu.Unlock()
	if rec != nil && rec.Len() > 0 {
		path, werr := rec.WriteFile(p.cfg.RecordingsDir, p.cfg.ID)
		if werr != nil {
			p.logger.Warn("recording not saved", "error", werr)
		} else {
			p.logger.Info("recording saved", "path", path, "duration", rec.Duration().String())
		}
	}
	return summary, err
}

// Close releases the capture session when the page goes away.
func (p *Page) Close(ctx context.Context) error {
	_, err := p.Disconnect(ctx)
	return err
}
