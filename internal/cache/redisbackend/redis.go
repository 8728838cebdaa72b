// Package redisbackend stores cache entries in Redis so verdicts are shared
// between processes.
package redisbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FranksOps/curator/internal/cache"
)

// KeyPrefix namespaces every key written by this backend.
const KeyPrefix = "curator:"

var _ cache.Backend = (*Backend)(nil)

// Options configures the redis connection.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
}

// Backend is a cache.Backend over a redis client.
type Backend struct {
	rdb *redis.Client
}

// New connects and pings the server. An unreachable server is an error so the
// caller can substitute cache.Noop.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 3 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: unreachable at %s: %w", opts.Addr, err)
	}
	return &Backend{rdb: rdb}, nil
}

// NewFromClient wraps an existing client without pinging it.
func NewFromClient(rdb *redis.Client) *Backend {
	return &Backend{rdb: rdb}
}

func (b *Backend) Load(ctx context.Context, key string) (cache.Entry, error) {
	data, err := b.rdb.Get(ctx, KeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return cache.Entry{}, cache.ErrNotFound
	}
	if err != nil {
		return cache.Entry{}, fmt.Errorf("redis: get: %w", err)
	}

	var e cache.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return cache.Entry{}, fmt.Errorf("redis: decode entry: %w", err)
	}
	return e, nil
}

// Save writes the entry in one SET. The native key TTL matches the entry TTL
// so redis reclaims memory on its own.
func (b *Backend) Save(ctx context.Context, e cache.Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: encode entry: %w", err)
	}
	ttl := e.TTL
	if ttl < 0 {
		ttl = 0
	}
	if err := b.rdb.Set(ctx, KeyPrefix+e.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	if err := b.rdb.Del(ctx, KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis: del: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.rdb.Close()
}
