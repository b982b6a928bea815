package rooms

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrInvalidRequest marks a create request that failed local validation.
	ErrInvalidRequest = errors.New("invalid room request")
	// ErrRemoteService matches every backend failure surfaced by a Store.
	ErrRemoteService = errors.New("room service error")
)

// Room links a topic, coaching option and expert persona.
type Room struct {
	ID             string    `json:"id"`
	Topic          string    `json:"topic"`
	CoachingOption string    `json:"coaching_option"`
	ExpertName     string    `json:"expert_name"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateRequest is the payload for Store.Create.
type CreateRequest struct {
	Topic          string `json:"topic"`
	CoachingOption string `json:"coaching_option"`
	ExpertName     string `json:"expert_name"`
	CreatedBy      string `json:"-"`
}

func (r CreateRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.Topic) == "":
		return errors.Join(ErrInvalidRequest, errors.New("topic is required"))
	case strings.TrimSpace(r.ExpertName) == "":
		return errors.Join(ErrInvalidRequest, errors.New("expert_name is required"))
	case strings.TrimSpace(r.CoachingOption) == "":
		return errors.Join(ErrInvalidRequest, errors.New("coaching_option is required"))
	}
	return nil
}

// Store creates and reads rooms.
//
// Get reports found=false while a room id is not (yet) resolvable. Callers treat
// that as "still loading", not as a terminal not-found.
type Store interface {
	Create(ctx context.Context, req CreateRequest) (Room, error)
	Get(ctx context.Context, id string) (room Room, found bool, err error)
	Close() error
}

// RemoteError wraps a backend failure; it matches ErrRemoteService and the cause.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return "rooms " + e.Op + ": " + e.Err.Error()
}

func (e *RemoteError) Unwrap() []error {
	return []error{ErrRemoteService, e.Err}
}

func remote(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RemoteError{Op: op, Err: err}
}
