package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-process Store for single instance deployments and
// tests.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// live returns the open window for key, dropping it if it has expired.
func (s *MemoryStore) live(key string) *window {
	w, ok := s.windows[key]
	if !ok {
		return nil
	}
	if !s.now().Before(w.expiresAt) {
		delete(s.windows, key)
		return nil
	}
	return w
}

func (s *MemoryStore) open(key string, ttl time.Duration) *window {
	w := s.live(key)
	if w == nil {
		w = &window{expiresAt: s.now().Add(ttl)}
		s.windows[key] = w
	}
	return w
}

func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.live(key)
	if w == nil {
		return 0, 0, nil
	}
	return w.count, w.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.open(key, ttl)
	w.count++
	return w.count, w.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) IncrIfBelow(_ context.Context, key string, limit int64, ttl time.Duration) (bool, int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.live(key)
	if w != nil && w.count >= limit {
		return false, w.count, w.expiresAt.Sub(s.now()), nil
	}
	w = s.open(key, ttl)
	w.count++
	return true, w.count, w.expiresAt.Sub(s.now()), nil
}

func (s *MemoryStore) Decr(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w := s.live(key); w != nil && w.count > 0 {
		w.count--
	}
	return nil
}

// Cleanup drops expired windows and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.expiresAt) {
			delete(s.windows, key)
			removed++
		}
	}
	return removed
}
