// Package postgres stores cache entries in a shared Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/curator/internal/cache"
)

// ensure postgresBackend implements cache.Backend
var _ cache.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BYTEA NOT NULL,
	stored_at TIMESTAMPTZ NOT NULL,
	ttl_ms BIGINT NOT NULL
);
`

// New connects to dsn and creates the cache table if needed.
func New(ctx context.Context, dsn string) (cache.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Load(ctx context.Context, key string) (cache.Entry, error) {
	var (
		e     cache.Entry
		ttlMs int64
	)
	err := b.pool.QueryRow(ctx,
		`SELECT key, value, stored_at, ttl_ms FROM cache_entries WHERE key = $1`, key,
	).Scan(&e.Key, &e.Value, &e.StoredAt, &ttlMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return cache.Entry{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Entry{}, fmt.Errorf("postgres: load: %w", err)
	}
	e.TTL = time.Duration(ttlMs) * time.Millisecond
	return e, nil
}

func (b *postgresBackend) Save(ctx context.Context, e cache.Entry) error {
	query := `
	INSERT INTO cache_entries (key, value, stored_at, ttl_ms) VALUES ($1, $2, $3, $4)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at, ttl_ms = EXCLUDED.ttl_ms
	`
	if _, err := b.pool.Exec(ctx, query, e.Key, e.Value, e.StoredAt, e.TTL.Milliseconds()); err != nil {
		return fmt.Errorf("postgres: save: %w", err)
	}
	return nil
}

func (b *postgresBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres: delete: %w", err)
	}
	return nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
