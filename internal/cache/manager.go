package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLocalSize is the local LRU capacity used when none is configured.
const DefaultLocalSize = 4096

const envelopeHeader = 8

var errShortEnvelope = errors.New("cache envelope too short")

// Entry is a cached value. Entries are replaced, never mutated.
type Entry struct {
	Fingerprint string
	Value       []byte
	ExpiresAt   time.Time // zero means no expiry
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// encode packs an entry for the shared store: 8 bytes of big-endian
// expiry (unix nanoseconds, 0 for none) followed by the value.
func (e Entry) encode() []byte {
	buf := make([]byte, envelopeHeader+len(e.Value))
	if !e.ExpiresAt.IsZero() {
		binary.BigEndian.PutUint64(buf, uint64(e.ExpiresAt.UnixNano()))
	}
	copy(buf[envelopeHeader:], e.Value)
	return buf
}

func decodeEntry(fingerprint string, raw []byte) (Entry, error) {
	if len(raw) < envelopeHeader {
		return Entry{}, errShortEnvelope
	}
	e := Entry{Fingerprint: fingerprint, Value: append([]byte(nil), raw[envelopeHeader:]...)}
	if ns := binary.BigEndian.Uint64(raw); ns != 0 {
		e.ExpiresAt = time.Unix(0, int64(ns))
	}
	return e, nil
}

// Stats is a snapshot of cache counters.
type Stats struct {
	LocalHits  int64 `json:"local_hits"`
	SharedHits int64 `json:"shared_hits"`
	Misses     int64 `json:"misses"`
	Writes     int64 `json:"writes"`
	Errors     int64 `json:"errors"`
	LocalSize  int   `json:"local_size"`
}

// Hits returns local plus shared hits.
func (s Stats) Hits() int64 { return s.LocalHits + s.SharedHits }

// Options configures a Manager.
type Options struct {
	LocalSize int
	// Shared is optional; without it the manager is a process-local cache.
	Shared Store
	Logger *slog.Logger
}

// Manager is a two-level cache: a bounded in-process LRU in front of an
// optional shared Store. It is safe for concurrent use.
type Manager struct {
	local  *lru.Cache[string, Entry]
	shared Store
	logger *slog.Logger
	now    func() time.Time

	localHits  atomic.Int64
	sharedHits atomic.Int64
	misses     atomic.Int64
	writes     atomic.Int64
	failures   atomic.Int64
}

// NewManager creates a Manager.
func NewManager(opts Options) (*Manager, error) {
	size := opts.LocalSize
	if size <= 0 {
		size = DefaultLocalSize
	}
	local, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("creating local cache: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		local:  local,
		shared: opts.Shared,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Get returns a copy of the cached value. A miss on the local level falls
// through to the shared level, and a shared hit is copied into the local
// level with its remaining TTL. Shared-level errors count as misses.
func (m *Manager) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	now := m.now()

	if e, ok := m.local.Get(fingerprint); ok {
		if !e.expired(now) {
			m.localHits.Add(1)
			return append([]byte(nil), e.Value...), true
		}
		m.local.Remove(fingerprint)
	}

	if m.shared != nil {
		raw, err := m.shared.Get(ctx, fingerprint)
		if err != nil {
			m.failures.Add(1)
			m.logger.Warn("shared cache read failed", "fingerprint", fingerprint, "error", err)
		} else if raw != nil {
			e, err := decodeEntry(fingerprint, raw)
			if err != nil {
				m.failures.Add(1)
				m.logger.Warn("discarding malformed cache entry", "fingerprint", fingerprint, "error", err)
			} else if !e.expired(now) {
				m.local.Add(fingerprint, e)
				m.sharedHits.Add(1)
				return append([]byte(nil), e.Value...), true
			}
		}
	}

	m.misses.Add(1)
	return nil, false
}

// Put stores value under fingerprint on both levels. A ttl of zero or less
// never expires. The local level is always written; the returned error
// reports a shared-level failure.
func (m *Manager) Put(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error {
	e := Entry{Fingerprint: fingerprint, Value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.ExpiresAt = m.now().Add(ttl)
	}
	m.local.Add(fingerprint, e)
	m.writes.Add(1)

	if m.shared == nil {
		return nil
	}
	if err := m.shared.Set(ctx, fingerprint, e.encode(), max(ttl, 0)); err != nil {
		m.failures.Add(1)
		return fmt.Errorf("writing shared cache: %w", err)
	}
	return nil
}

// Invalidate removes every entry whose fingerprint matches pattern from both
// levels and returns how many distinct entries were removed. Patterns use
// glob syntax (*, ?, [...]); a pattern without metacharacters is a prefix.
func (m *Manager) Invalidate(ctx context.Context, pattern string) (int, error) {
	pattern, err := MatchPattern(pattern)
	if err != nil {
		return 0, err
	}

	removed := make(map[string]struct{})
	for _, key := range m.local.Keys() {
		if ok, _ := path.Match(pattern, key); ok {
			m.local.Remove(key)
			removed[key] = struct{}{}
		}
	}

	if m.shared != nil {
		keys, err := m.shared.DeleteMatching(ctx, pattern)
		for _, k := range keys {
			removed[k] = struct{}{}
		}
		if err != nil {
			return len(removed), fmt.Errorf("invalidating shared cache: %w", err)
		}
	}

	m.logger.Info("cache invalidated", "pattern", pattern, "removed", len(removed))
	return len(removed), nil
}

// Len returns the number of entries in the local level.
func (m *Manager) Len() int {
	return m.local.Len()
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		LocalHits:  m.localHits.Load(),
		SharedHits: m.sharedHits.Load(),
		Misses:     m.misses.Load(),
		Writes:     m.writes.Load(),
		Errors:     m.failures.Load(),
		LocalSize:  m.local.Len(),
	}
}

// Close releases the shared store.
func (m *Manager) Close() error {
	if m.shared == nil {
		return nil
	}
	return m.shared.Close()
}
