// Package sqlite stores cache entries in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/FranksOps/curator/internal/cache"
)

// ensure sqliteBackend implements cache.Backend
var _ cache.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	ttl_ms INTEGER NOT NULL
);
`

// New opens dsn and creates the cache table if needed.
func New(dsn string) (cache.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer keeps upserts serialized without busy retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Load(ctx context.Context, key string) (cache.Entry, error) {
	var (
		e        cache.Entry
		storedAt int64
		ttlMs    int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT key, value, stored_at, ttl_ms FROM cache_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.Value, &storedAt, &ttlMs)
	if errors.Is(err, sql.ErrNoRows) {
		return cache.Entry{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Entry{}, fmt.Errorf("sqlite: load: %w", err)
	}

	e.StoredAt = time.Unix(0, storedAt).UTC()
	e.TTL = time.Duration(ttlMs) * time.Millisecond
	return e, nil
}

func (b *sqliteBackend) Save(ctx context.Context, e cache.Entry) error {
	query := `
	INSERT INTO cache_entries (key, value, stored_at, ttl_ms) VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, stored_at = excluded.stored_at, ttl_ms = excluded.ttl_ms
	`
	_, err := b.db.ExecContext(ctx, query, e.Key, e.Value, e.StoredAt.UnixNano(), e.TTL.Milliseconds())
	if err != nil {
		return fmt.Errorf("sqlite: save: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
