package cache

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"time"
)

// ErrBadPattern is returned when an invalidation pattern is malformed.
var ErrBadPattern = errors.New("invalid cache pattern")

// Store is the shared cache level. Get returns nil, nil on a miss, the same
// contract as the gofiber storage drivers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// DeleteMatching removes every key matching a glob pattern and returns
	// the removed keys.
	DeleteMatching(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// MatchPattern normalizes an invalidation pattern. A pattern without glob
// metacharacters is treated as a prefix.
func MatchPattern(pattern string) (string, error) {
	if pattern == "" {
		return "", ErrBadPattern
	}
	if !strings.ContainsAny(pattern, "*?[\\") {
		pattern += "*"
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return "", ErrBadPattern
	}
	return pattern, nil
}

type memoryItem struct {
	val       []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store, used when no Redis is configured and
// in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem), now: time.Now}
}

// Get returns a copy of the stored value, or nil if missing or expired.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	item, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if !item.expiresAt.IsZero() && !s.now().Before(item.expiresAt) {
		s.mu.Lock()
		delete(s.items, key)
		s.mu.Unlock()
		return nil, nil
	}
	return append([]byte(nil), item.val...), nil
}

// Set stores a copy of val. A ttl of zero keeps the value until deleted.
func (s *MemoryStore) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	item := memoryItem{val: append([]byte(nil), val...)}
	if ttl > 0 {
		item.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.items[key] = item
	s.mu.Unlock()
	return nil
}

// DeleteMatching removes keys matching pattern.
func (s *MemoryStore) DeleteMatching(_ context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for key := range s.items {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return removed, ErrBadPattern
		}
		if ok {
			delete(s.items, key)
			removed = append(removed, key)
		}
	}
	return removed, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
