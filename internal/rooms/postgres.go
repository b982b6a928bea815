package rooms

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore persists discussion rooms in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrations, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, req CreateRequest) (Room, error) {
	if err := req.Validate(); err != nil {
		return Room{}, err
	}
	room := Room{
		ID:             uuid.NewString(),
		Topic:          strings.TrimSpace(req.Topic),
		CoachingOption: req.CoachingOption,
		ExpertName:     req.ExpertName,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO discussion_rooms (id, topic, coaching_option, expert_name, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		room.ID,
		room.Topic,
		room.CoachingOption,
		room.ExpertName,
		room.CreatedBy,
		room.CreatedAt,
	)
	if err != nil {
		return Room{}, remote("create", err)
	}
	return room, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Room, bool, error) {
	var r Room
	err := s.pool.QueryRow(ctx,
		`SELECT id, topic, coaching_option, expert_name, created_by, created_at
		 FROM discussion_rooms WHERE id=$1`,
		id,
	).Scan(&r.ID, &r.Topic, &r.CoachingOption, &r.ExpertName, &r.CreatedBy, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, false, nil
	}
	if err != nil {
		return Room{}, false, remote("get", err)
	}
	return r, true, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
