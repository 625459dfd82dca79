// Package ratelimit admits or rejects calls per identity over a trailing
// time window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a call for identity may proceed now. It never
// blocks waiting for capacity.
type Limiter interface {
	Admit(ctx context.Context, identity string) (bool, error)
}

// Limit is the number of calls allowed in any trailing Window. A
// MaxRequests of zero or less means unlimited.
type Limit struct {
	MaxRequests int           `json:"max_requests" yaml:"max_requests"`
	Window      time.Duration `json:"window" yaml:"window"`
}

func (l Limit) unlimited() bool {
	return l.MaxRequests <= 0 || l.Window <= 0
}

// Limits is a default limit plus per-identity overrides.
type Limits struct {
	Default   Limit
	Overrides map[string]Limit
}

// For returns the limit that applies to identity.
func (l Limits) For(identity string) Limit {
	if o, ok := l.Overrides[identity]; ok {
		return o
	}
	return l.Default
}

type bucket struct {
	mu     sync.Mutex
	limit  Limit
	stamps []time.Time
}

// SlidingWindow is an in-process limiter. Each identity owns a bucket with
// its own lock, so callers for different identities never contend beyond
// the bucket lookup.
type SlidingWindow struct {
	limits Limits
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewSlidingWindow creates an in-process limiter.
func NewSlidingWindow(limits Limits) *SlidingWindow {
	return &SlidingWindow{
		limits:  limits,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (s *SlidingWindow) bucket(identity string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[identity]
	if !ok {
		b = &bucket{limit: s.limits.For(identity)}
		s.buckets[identity] = b
	}
	return b
}

// Admit records the call and returns true if fewer than MaxRequests calls
// were admitted for identity in the trailing window. Stale timestamps are
// pruned on each call.
func (s *SlidingWindow) Admit(_ context.Context, identity string) (bool, error) {
	b := s.bucket(identity)
	if b.limit.unlimited() {
		return true, nil
	}

	now := s.now()
	cutoff := now.Add(-b.limit.Window)

	b.mu.Lock()
	defer b.mu.Unlock()

	keep := 0
	for keep < len(b.stamps) && !b.stamps[keep].After(cutoff) {
		keep++
	}
	b.stamps = b.stamps[keep:]

	if len(b.stamps) >= b.limit.MaxRequests {
		return false, nil
	}
	b.stamps = append(b.stamps, now)
	return true, nil
}

// inFlight returns how many calls for identity count against its current
// window.
func (s *SlidingWindow) inFlight(identity string) int {
	b := s.bucket(identity)
	cutoff := s.now().Add(-b.limit.Window)

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range b.stamps {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
