// Package session keeps short-lived state (wizard sessions and fast-track handoffs)
// in a TTL key-value store backed by memory or Redis.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned for missing or expired keys.
var ErrNotFound = errors.New("session not found")

// Store is a byte-oriented key-value store with per-key expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Take returns the value and deletes the key in one step.
	Take(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend       string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open builds the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}
}

type memoryEntry struct {
	val     []byte
	expires time.Time
}

// sweepInterval bounds how often Set scans the whole map for expired keys.
const sweepInterval = time.Minute

// MemoryStore is an in-process Store. Expired keys are dropped when read and swept from
// Set at most once per sweepInterval, so abandoned sessions do not accumulate.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	lastSweep time.Time
	Now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, Now: time.Now}
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

func (m *MemoryStore) lookup(key string) ([]byte, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(m.Now()) {
		delete(m.entries, key)
		return nil, false
	}
	return e.val, true
}

func (m *MemoryStore) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
}

// Len reports the number of keys held, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.Now()
	m.sweep(now)
	e := memoryEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Take(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.lookup(key)
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.entries, key)
	return v, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
