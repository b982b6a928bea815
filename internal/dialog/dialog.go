// Package dialog implements the room creation dialog: topic and expert entry,
// a single in-flight submit, and retry after a failed create.
package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/antoniostano/coachroom/internal/catalog"
	"github.com/antoniostano/coachroom/internal/rooms"
)

// Errors returned by Submit. Validation errors leave the dialog open for edits.
var (
	ErrSubmitInFlight = errors.New("room creation already in progress")
	ErrTopicRequired  = errors.New("topic is required")
	ErrUnknownExpert  = errors.New("unknown expert")
)

// Creator is the subset of rooms.Store the dialog needs.
type Creator interface {
	Create(ctx context.Context, req rooms.CreateRequest) (rooms.Room, error)
}

// Experts resolves persona names.
type Experts interface {
	Expert(name string) (catalog.Persona, bool)
}

// Dialog holds the form state for one coaching option.
type Dialog struct {
	creator   Creator
	experts   Experts
	option    string
	createdBy string

	mu       sync.Mutex
	topic    string
	expert   string
	inFlight bool
	lastErr  error
	roomID   string
}

func New(creator Creator, experts Experts, coachingOption, createdBy string) *Dialog {
	return &Dialog{
		creator:   creator,
		experts:   experts,
		option:    coachingOption,
		createdBy: createdBy,
	}
}

// SetTopic and SelectExpert edit the form. Fields are frozen while a submit is in flight.
func (d *Dialog) SetTopic(topic string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight {
		return ErrSubmitInFlight
	}
	d.topic = topic
	return nil
}

func (d *Dialog) SelectExpert(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inFlight {
		return ErrSubmitInFlight
	}
	d.expert = name
	return nil
}

func (d *Dialog) Topic() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.topic
}

func (d *Dialog) ExpertName() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.expert
}

func (d *Dialog) CoachingOption() string { return d.option }

// Submitting reports whether a create call is outstanding (the submit button is disabled).
func (d *Dialog) Submitting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}

// CanSubmit mirrors the enabled state of the submit control.
func (d *Dialog) CanSubmit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.inFlight && d.validateLocked() == nil
}

// LastError is the error of the most recent failed submit, cleared on success.
func (d *Dialog) LastError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

// RoomID is the id created by the last successful submit.
func (d *Dialog) RoomID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.roomID
}

// Submit creates the room exactly once. A concurrent call while the first is
// outstanding gets ErrSubmitInFlight and does not reach the store. On failure the
// fields are kept so the user can retry.
func (d *Dialog) Submit(ctx context.Context) (string, error) {
	return d.submit(ctx, nil)
}

// SubmitWith fills the fields and submits them under one lock, so the create
// always carries this call's values.
func (d *Dialog) SubmitWith(ctx context.Context, topic, expertName string) (string, error) {
	return d.submit(ctx, func() {
		d.topic = topic
		d.expert = expertName
	})
}

func (d *Dialog) submit(ctx context.Context, fill func()) (string, error) {
	d.mu.Lock()
	if d.inFlight {
		d.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	if fill != nil {
		fill()
	}
	if err := d.validateLocked(); err != nil {
		d.mu.Unlock()
		return "", err
	}
	d.inFlight = true
	req := rooms.CreateRequest{
		Topic:          d.topic,
		CoachingOption: d.option,
		ExpertName:     d.expert,
		CreatedBy:      d.createdBy,
	}
	d.mu.Unlock()

	room, err := d.creator.Create(ctx, req)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight = false
	if err != nil {
		d.lastErr = err
		return "", err
	}
	d.lastErr = nil
	d.roomID = room.ID
	return room.ID, nil
}

func (d *Dialog) validateLocked() error {
	if strings.TrimSpace(d.topic) == "" {
		return ErrTopicRequired
	}
	if _, ok := d.experts.Expert(d.expert); !ok {
		return ErrUnknownExpert
	}
	return nil
}
