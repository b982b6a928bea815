package rooms

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
// Either way reads go through an LRU of cacheSize rooms.
func NewStore(ctx context.Context, databaseURL string, cacheSize int) (Store, string, error) {
	var (
		base Store
		mode = "in-memory"
	)
	if strings.TrimSpace(databaseURL) == "" {
		base = NewInMemoryStore()
	} else {
		pg, err := NewPostgresStore(ctx, databaseURL)
		if err != nil {
			return nil, "", err
		}
		base = pg
		mode = "postgres"
	}

	cached, err := NewCachedStore(base, cacheSize)
	if err != nil {
		_ = base.Close()
		return nil, "", err
	}
	return cached, mode, nil
}
