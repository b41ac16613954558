package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = 10 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
)

// MemoryStore is a process-local Store backed by go-cache. Entries vanish on restart,
// which is acceptable for rate-limit windows and short-lived lookups.
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
	now   func() time.Time
}

type windowCounter struct {
	count   int64
	resetAt time.Time
}

// NewMemoryStore creates an in-memory store with the given default expiration and janitor interval.
func NewMemoryStore(defaultExpiration, cleanupInterval time.Duration) *MemoryStore {
	if defaultExpiration <= 0 {
		defaultExpiration = DefaultExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &MemoryStore{
		cache: gocache.New(defaultExpiration, cleanupInterval),
		now:   time.Now,
	}
}

// IncrementWithTTL bumps a fixed-window counter, starting a new window when the previous one elapsed.
func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if value, found := s.cache.Get(key); found {
		if counter, ok := value.(*windowCounter); ok && now.Before(counter.resetAt) {
			counter.count++
			return counter.count, counter.resetAt.Sub(now), nil
		}
	}

	counter := &windowCounter{count: 1, resetAt: now.Add(window)}
	s.cache.Set(key, counter, window)
	return counter.count, window, nil
}

// Set stores a copy of value for ttl. A non-positive ttl uses the default expiration.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	cpy := make([]byte, len(value))
	copy(cpy, value)
	s.cache.Set(key, cpy, ttl)
	return nil
}

// Get returns a copy of the stored bytes.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := s.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, false, nil
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)
	return cpy, true, nil
}

// Delete removes the given keys; missing keys are ignored.
func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

// Len reports the number of live entries.
func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
