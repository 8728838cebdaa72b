// Package cache is the key/value store shared by the embed prober and the
// result cache. A Store never returns errors: a failing backing is logged and
// counted, and reads as a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/FranksOps/curator/internal/metrics"
)

// ErrNotFound is returned by a Backend when the key holds no entry.
var ErrNotFound = errors.New("cache: not found")

// Entry is one stored value. A TTL <= 0 never expires.
type Entry struct {
	Key      string        `json:"key"`
	Value    []byte        `json:"value"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its TTL at now.
func (e Entry) Expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.StoredAt) >= e.TTL
}

// Remaining returns the TTL left at now, or 0 for entries that never expire.
func (e Entry) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	return e.TTL - now.Sub(e.StoredAt)
}

// Backend persists entries. Expiry is enforced by Store, so a backend may
// return entries that are already stale.
type Backend interface {
	Load(ctx context.Context, key string) (Entry, error)
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store wraps a Backend with lazy expiry and error suppression.
type Store struct {
	backend Backend
	name    string
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for backing failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithName labels the store in logs and metrics.
func WithName(name string) Option {
	return func(s *Store) { s.name = name }
}

// New wraps b. A nil backend behaves as Noop.
func New(b Backend, opts ...Option) *Store {
	if b == nil {
		b = Noop{}
	}
	s := &Store{
		backend: b,
		name:    "memory",
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the value stored under key. Expired entries are deleted and reported as absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	e, err := s.backend.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.fail("get", key, err)
			return nil, false
		}
		s.count("get", "miss")
		return nil, false
	}

	if e.Expired(s.now()) {
		s.count("get", "expired")
		if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
			s.fail("del", key, err)
		}
		return nil, false
	}

	s.count("get", "hit")
	return e.Value, true
}

// Set stores value under key for ttl, replacing any previous entry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	e := Entry{Key: key, Value: value, StoredAt: s.now(), TTL: ttl}
	if err := s.backend.Save(ctx, e); err != nil {
		s.fail("set", key, err)
		return
	}
	s.count("set", "ok")
}

// Del removes key. Deleting an absent key is not an error.
func (s *Store) Del(ctx context.Context, key string) {
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		s.fail("del", key, err)
		return
	}
	s.count("del", "ok")
}

// Close releases the backing.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) fail(op, key string, err error) {
	s.count(op, "error")
	s.logger.Warn("cache backing failed",
		zap.String("backend", s.name),
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func (s *Store) count(op, result string) {
	metrics.CacheOpsTotal.WithLabelValues(s.name, op, result).Inc()
}

// GetJSON decodes the value under key into T. A stored JSON false decodes as
// (false, true), distinct from a miss. Undecodable values read as a miss.
func GetJSON[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var out T
	data, ok := s.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("cache value undecodable", zap.String("key", key), zap.Error(err))
		var zero T
		return zero, false
	}
	return out, true
}

// SetJSON encodes v and stores it under key.
func SetJSON[T any](ctx context.Context, s *Store, key string, v T, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("cache value unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	s.Set(ctx, key, data, ttl)
}

// Key builds a deterministic, fixed-length key from parts. Each part is
// length-prefixed, so no separator inside a part can shift it into the next.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s", len(p), p)
	}
	return fmt.Sprintf("cv:%x", h.Sum(nil)[:12])
}
