package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bulkpress/internal/testutil"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestWindow(limits Limits) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	sw := NewSlidingWindow(limits)
	sw.now = clock.Now
	return sw, clock
}

func TestSlidingWindow_RejectsOverLimit(t *testing.T) {
	ctx := context.Background()
	sw, clock := newTestWindow(Limits{Default: Limit{MaxRequests: 3, Window: time.Second}})

	for i := 0; i < 3; i++ {
		ok, err := sw.Admit(ctx, "X")
		if err != nil || !ok {
			t.Fatalf("call %d: Admit() = %v, %v; want admitted", i+1, ok, err)
		}
		clock.Advance(100 * time.Millisecond)
	}

	if ok, _ := sw.Admit(ctx, "X"); ok {
		t.Error("4th call within the window should be rejected")
	}

	// The first call was at t=0; once the window passes it no longer counts.
	clock.Advance(time.Second)
	if ok, _ := sw.Admit(ctx, "X"); !ok {
		t.Error("call after the window elapsed should be admitted")
	}
}

func TestSlidingWindow_RejectionDoesNotConsume(t *testing.T) {
	ctx := context.Background()
	sw, clock := newTestWindow(Limits{Default: Limit{MaxRequests: 1, Window: time.Second}})

	sw.Admit(ctx, "X")
	for i := 0; i < 5; i++ {
		clock.Advance(100 * time.Millisecond)
		sw.Admit(ctx, "X")
	}
	if n := sw.inFlight("X"); n != 1 {
		t.Errorf("inFlight() = %d, want 1", n)
	}
	clock.Advance(500 * time.Millisecond)
	if ok, _ := sw.Admit(ctx, "X"); !ok {
		t.Error("rejected calls should not extend the window")
	}
}

func TestSlidingWindow_IdentitiesAreIndependent(t *testing.T) {
	ctx := context.Background()
	sw, _ := newTestWindow(Limits{Default: Limit{MaxRequests: 1, Window: time.Minute}})

	if ok, _ := sw.Admit(ctx, "a"); !ok {
		t.Fatal("first call for a rejected")
	}
	if ok, _ := sw.Admit(ctx, "b"); !ok {
		t.Error("b should have its own budget")
	}
	if ok, _ := sw.Admit(ctx, "a"); ok {
		t.Error("second call for a should be rejected")
	}
}

func TestSlidingWindow_Overrides(t *testing.T) {
	ctx := context.Background()
	sw, _ := newTestWindow(Limits{
		Default: Limit{MaxRequests: 1, Window: time.Minute},
		Overrides: map[string]Limit{
			"generous": {MaxRequests: 3, Window: time.Minute},
			"free":     {},
		},
	})

	tests := []struct {
		identity string
		admitted int
	}{
		{"default", 1},
		{"generous", 3},
		{"free", 10},
	}

	for _, tt := range tests {
		t.Run(tt.identity, func(t *testing.T) {
			got := 0
			for i := 0; i < 10; i++ {
				if ok, _ := sw.Admit(ctx, tt.identity); ok {
					got++
				}
			}
			if got != tt.admitted {
				t.Errorf("admitted %d of 10, want %d", got, tt.admitted)
			}
		})
	}
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	ctx := context.Background()
	sw := NewSlidingWindow(Limits{Default: Limit{MaxRequests: 50, Window: time.Hour}})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if ok, _ := sw.Admit(ctx, fmt.Sprintf("p%d", i%2)); ok {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if got := admitted.Load(); got != 100 {
		t.Errorf("admitted = %d, want 100 (50 per identity)", got)
	}
}

func TestRedisWindow(t *testing.T) {
	client := testutil.TestRedis(t)
	ctx := context.Background()

	identity := fmt.Sprintf("test-%d", time.Now().UnixNano())
	rw := NewRedisWindow(client, Limits{Default: Limit{MaxRequests: 3, Window: 500 * time.Millisecond}}, "bulkpress:test:ratelimit:")
	t.Cleanup(func() { client.Del(ctx, "bulkpress:test:ratelimit:"+identity) })

	for i := 0; i < 3; i++ {
		ok, err := rw.Admit(ctx, identity)
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		if !ok {
			t.Fatalf("call %d rejected", i+1)
		}
	}
	if ok, _ := rw.Admit(ctx, identity); ok {
		t.Error("4th call within the window should be rejected")
	}

	time.Sleep(600 * time.Millisecond)
	if ok, _ := rw.Admit(ctx, identity); !ok {
		t.Error("call after the window elapsed should be admitted")
	}
}
