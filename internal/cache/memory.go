package cache

import (
	"context"
	"sync"
	"time"
)

var _ Backend = (*Memory)(nil)

// Memory is an in-process Backend. Writes for a key replace the entry under one lock.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry

	janitor  sync.Once
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory returns an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		stop:    make(chan struct{}),
	}
}

func (m *Memory) Load(_ context.Context, key string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *Memory) Save(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops every entry expired at now and returns how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.Expired(now) {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

// StartJanitor sweeps expired entries every interval until Close. Only the
// first call starts a sweeper.
func (m *Memory) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.janitor.Do(func() {
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-m.stop:
					return
				case now := <-t.C:
					m.Sweep(now)
				}
			}
		}()
	})
}

// Close stops the janitor, if any.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
