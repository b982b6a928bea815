package rooms

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore keeps recently seen rooms in a bounded LRU in front of another Store.
// Rooms are immutable once created, so entries never need invalidation. Absent
// results are not cached because an id may become resolvable later.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, Room]
}

func NewCachedStore(next Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, Room](size)
	if err != nil {
		return nil, fmt.Errorf("room cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (s *CachedStore) Create(ctx context.Context, req CreateRequest) (Room, error) {
	room, err := s.next.Create(ctx, req)
	if err != nil {
		return Room{}, err
	}
	s.cache.Add(room.ID, room)
	return room, nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (Room, bool, error) {
	if room, ok := s.cache.Get(id); ok {
		return room, true, nil
	}
	room, found, err := s.next.Get(ctx, id)
	if err != nil || !found {
		return Room{}, found, err
	}
	s.cache.Add(id, room)
	return room, true, nil
}

func (s *CachedStore) Len() int { return s.cache.Len() }

func (s *CachedStore) Close() error { return s.next.Close() }
