package rooms

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process room store for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]Room
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{rooms: make(map[string]Room)}
}

func (s *InMemoryStore) Create(ctx context.Context, req CreateRequest) (Room, error) {
	if err := req.Validate(); err != nil {
		return Room{}, err
	}
	if err := ctx.Err(); err != nil {
		return Room{}, remote("create", err)
	}
	room := Room{
		ID:             uuid.NewString(),
		Topic:          strings.TrimSpace(req.Topic),
		CoachingOption: req.CoachingOption,
		ExpertName:     req.ExpertName,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	return room, nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (Room, bool, error) {
	if err := ctx.Err(); err != nil {
		return Room{}, false, remote("get", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[id]
	return room, ok, nil
}

func (s *InMemoryStore) Close() error { return nil }
