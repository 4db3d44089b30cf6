// Package cache stores answers to library questions so repeated questions
// are served without asking the model again.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long a cached answer stays valid.
const DefaultTTL = 24 * time.Hour

// Key identifies a library answer. The same library question may be answered
// differently per specialization.
type Key struct {
	QuestionID     int64
	Specialization string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.QuestionID, strings.ToLower(strings.TrimSpace(k.Specialization)))
}

// Cache is a library answer cache.
type Cache interface {
	// Get returns the answer and whether it was found.
	Get(ctx context.Context, key Key) (string, bool, error)
	Set(ctx context.Context, key Key, answer string) error
	// Clear drops every cached answer.
	Clear(ctx context.Context) error
	Close() error
}

// Pinger is implemented by caches backed by a remote store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New returns a redis cache when redisURL is set, otherwise an in-memory one.
func New(redisURL string, ttl time.Duration) (Cache, error) {
	if strings.TrimSpace(redisURL) == "" {
		return NewMemory(ttl), nil
	}
	return NewRedis(redisURL, ttl)
}

type memoryEntry struct {
	answer    string
	expiresAt time.Time
}

// Memory is a process-local Cache.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[Key]memoryEntry
}

// NewMemory creates an in-memory cache. ttl <= 0 uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{ttl: ttl, now: time.Now, entries: make(map[Key]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key Key) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[normalizeKey(key)]
	if !ok {
		return "", false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, normalizeKey(key))
		return "", false, nil
	}
	return e.answer, true, nil
}

func (m *Memory) Set(_ context.Context, key Key, answer string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[normalizeKey(key)] = memoryEntry{answer: answer, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[Key]memoryEntry)
	return nil
}

func (m *Memory) Close() error { return nil }

func normalizeKey(k Key) Key {
	k.Specialization = strings.ToLower(strings.TrimSpace(k.Specialization))
	return k
}
