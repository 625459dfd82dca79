package provider

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"bulkpress/internal/cache"
	"bulkpress/internal/models"
	"bulkpress/internal/ratelimit"
)

// countingProvider answers from a script of results, one per call; the last
// entry repeats.
type countingProvider struct {
	name   string
	calls  atomic.Int64
	script []error
	value  string
}

func (p *countingProvider) Name() string                  { return p.name }
func (p *countingProvider) Capability() models.Capability { return models.CapabilityContent }

func (p *countingProvider) Invoke(ctx context.Context, req []byte) ([]byte, error) {
	n := int(p.calls.Add(1)) - 1
	if len(p.script) > 0 {
		if n >= len(p.script) {
			n = len(p.script) - 1
		}
		if err := p.script[n]; err != nil {
			return nil, err
		}
	}
	return []byte(p.value), nil
}

func ok(name, value string) *countingProvider {
	return &countingProvider{name: name, value: value}
}

func failing(name string, errs ...error) *countingProvider {
	return &countingProvider{name: name, script: errs}
}

func newTestChain(providers []Provider, opts ChainOptions) *Chain {
	c := NewChain(models.CapabilityContent, providers, opts)
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return c
}

func outcomes(attempts []models.ProviderAttempt) []string {
	out := make([]string, len(attempts))
	for i, a := range attempts {
		out[i] = a.Provider + ":" + a.Outcome
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var testCall = Call{Stage: models.StageContent, Keyword: "coffee", Input: []byte(`{"keyword":"coffee"}`)}

func TestChain_FallsBackInOrder(t *testing.T) {
	a := failing("A", Permanent(errors.New("bad request")))
	b := ok("B", "from B")
	c := ok("C", "from C")

	chain := newTestChain([]Provider{a, b, c}, ChainOptions{Retry: models.RetryPolicy{MaxRetries: 3}})
	out, attempts, err := chain.Invoke(context.Background(), testCall)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(out) != "from B" {
		t.Errorf("Invoke() = %q, want %q", out, "from B")
	}

	want := []string{"A:error", "B:success"}
	if got := outcomes(attempts); !equalStrings(got, want) {
		t.Errorf("attempts = %v, want %v", got, want)
	}
	if a.calls.Load() != 1 {
		t.Errorf("A called %d times, permanent errors must not retry", a.calls.Load())
	}
	if c.calls.Load() != 0 {
		t.Errorf("C called %d times, want 0", c.calls.Load())
	}
}

func TestChain_RetriesTransient(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		script     []error
		wantCalls  int64
		wantValue  string
	}{
		{"recovers on second try", 2, []error{Transient(errors.New("503")), nil}, 2, "from A"},
		{"recovers on last retry", 2, []error{Transient(errors.New("503")), Transient(errors.New("503")), nil}, 3, "from A"},
		{"gives up after max retries", 1, []error{Transient(errors.New("503"))}, 2, "from B"},
		{"no retries configured", 0, []error{Transient(errors.New("503"))}, 1, "from B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &countingProvider{name: "A", script: tt.script, value: "from A"}
			b := ok("B", "from B")

			chain := newTestChain([]Provider{a, b}, ChainOptions{Retry: models.RetryPolicy{MaxRetries: tt.maxRetries}})
			out, _, err := chain.Invoke(context.Background(), testCall)
			if err != nil {
				t.Fatalf("Invoke() error = %v", err)
			}
			if string(out) != tt.wantValue {
				t.Errorf("Invoke() = %q, want %q", out, tt.wantValue)
			}
			if a.calls.Load() != tt.wantCalls {
				t.Errorf("A called %d times, want %d", a.calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestChain_BackoffDelays(t *testing.T) {
	a := failing("A", Transient(errors.New("timeout")))
	chain := NewChain(models.CapabilityContent, []Provider{a}, ChainOptions{
		Retry: models.RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond},
	})
	var delays []time.Duration
	chain.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, _, err := chain.Invoke(context.Background(), testCall)
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("Invoke() error = %v, want exhausted", err)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

type rejectLimiter struct{ reject map[string]bool }

func (l rejectLimiter) Admit(_ context.Context, identity string) (bool, error) {
	return !l.reject[identity], nil
}

type brokenLimiter struct{}

func (brokenLimiter) Admit(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestChain_RateLimitedProviderIsSkipped(t *testing.T) {
	a := ok("A", "from A")
	b := ok("B", "from B")

	chain := newTestChain([]Provider{a, b}, ChainOptions{Limiter: rejectLimiter{reject: map[string]bool{"A": true}}})
	out, attempts, err := chain.Invoke(context.Background(), testCall)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(out) != "from B" {
		t.Errorf("Invoke() = %q, want from B", out)
	}
	if a.calls.Load() != 0 {
		t.Error("rate-limited provider was invoked")
	}
	want := []string{"A:rate_limited", "B:success"}
	if got := outcomes(attempts); !equalStrings(got, want) {
		t.Errorf("attempts = %v, want %v", got, want)
	}
}

func TestChain_LimiterConsultedBeforeRetries(t *testing.T) {
	a := failing("A", Transient(errors.New("503")))
	b := ok("B", "from B")
	limiter := ratelimit.NewSlidingWindow(ratelimit.Limits{
		Overrides: map[string]ratelimit.Limit{"A": {MaxRequests: 2, Window: time.Hour}},
	})

	chain := newTestChain([]Provider{a, b}, ChainOptions{Limiter: limiter, Retry: models.RetryPolicy{MaxRetries: 5}})
	_, attempts, err := chain.Invoke(context.Background(), testCall)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	want := []string{"A:error", "A:error", "A:rate_limited", "B:success"}
	if got := outcomes(attempts); !equalStrings(got, want) {
		t.Errorf("attempts = %v, want %v", got, want)
	}
}

func TestChain_LimiterErrorAdmits(t *testing.T) {
	a := ok("A", "from A")
	chain := newTestChain([]Provider{a}, ChainOptions{Limiter: brokenLimiter{}})
	if out, _, err := chain.Invoke(context.Background(), testCall); err != nil || string(out) != "from A" {
		t.Errorf("Invoke() = %q, %v; want from A", out, err)
	}
}

func TestChain_CacheHitSkipsProviders(t *testing.T) {
	ctx := context.Background()
	mgr, err := cache.NewManager(cache.Options{LocalSize: 16})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	a := ok("A", "from A")
	chain := newTestChain([]Provider{a}, ChainOptions{Cache: mgr})

	call := testCall
	call.TTL = time.Hour
	if _, _, err := chain.Invoke(ctx, call); err != nil {
		t.Fatalf("first Invoke() error = %v", err)
	}

	out, attempts, err := chain.Invoke(ctx, call)
	if err != nil {
		t.Fatalf("second Invoke() error = %v", err)
	}
	if string(out) != "from A" {
		t.Errorf("cached value = %q", out)
	}
	if a.calls.Load() != 1 {
		t.Errorf("A called %d times, want 1", a.calls.Load())
	}
	want := []string{"cache:hit_cache"}
	if got := outcomes(attempts); !equalStrings(got, want) {
		t.Errorf("attempts = %v, want %v", got, want)
	}

	// A different request is a different fingerprint.
	other := call
	other.Input = []byte(`{"keyword":"coffee","language":"de"}`)
	if _, attempts, _ := chain.Invoke(ctx, other); attempts[0].Outcome != models.OutcomeSuccess {
		t.Errorf("different input should miss the cache, got %v", outcomes(attempts))
	}
}

func TestChain_RejectedResponseNotCached(t *testing.T) {
	ctx := context.Background()
	mgr, _ := cache.NewManager(cache.Options{LocalSize: 16})
	a := ok("A", "garbage")
	b := ok("B", "valid")

	call := testCall
	call.Accept = func(b []byte) error {
		if string(b) != "valid" {
			return errors.New("not valid")
		}
		return nil
	}

	chain := newTestChain([]Provider{a, b}, ChainOptions{Cache: mgr, Retry: models.RetryPolicy{MaxRetries: 2}})
	out, attempts, err := chain.Invoke(ctx, call)
	if err != nil || string(out) != "valid" {
		t.Fatalf("Invoke() = %q, %v", out, err)
	}
	if a.calls.Load() != 1 {
		t.Errorf("rejected responses are permanent, A called %d times", a.calls.Load())
	}
	if attempts[0].Outcome != models.OutcomeError {
		t.Errorf("first attempt = %+v, want error", attempts[0])
	}

	fp := cache.Fingerprint(call.Stage, call.Keyword, call.Input)
	if v, hit := mgr.Get(ctx, fp); !hit || string(v) != "valid" {
		t.Errorf("cache holds %q, %v; want the accepted value", v, hit)
	}
}

func TestChain_Exhausted(t *testing.T) {
	a := failing("A", Permanent(errors.New("invalid key")))
	b := failing("B", Transient(errors.New("503")))

	chain := newTestChain([]Provider{a, b}, ChainOptions{Retry: models.RetryPolicy{MaxRetries: 1}})
	out, attempts, err := chain.Invoke(context.Background(), testCall)
	if out != nil {
		t.Errorf("Invoke() = %q, want nil", out)
	}
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Fatalf("error = %v, want ErrAllProvidersExhausted", err)
	}

	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("error is %T, want *ExhaustedError", err)
	}
	if len(ex.Outcomes) != 2 {
		t.Fatalf("Outcomes = %+v", ex.Outcomes)
	}
	if ex.Outcomes[0].Kind != models.KindPermanent || ex.Outcomes[1].Kind != models.KindTransient {
		t.Errorf("outcome kinds = %s, %s", ex.Outcomes[0].Kind, ex.Outcomes[1].Kind)
	}
	if len(attempts) != 3 {
		t.Errorf("len(attempts) = %d, want 3", len(attempts))
	}
}

func TestChain_NoProviders(t *testing.T) {
	chain := newTestChain(nil, ChainOptions{})
	_, attempts, err := chain.Invoke(context.Background(), testCall)
	if !errors.Is(err, ErrAllProvidersExhausted) {
		t.Errorf("error = %v, want exhausted", err)
	}
	if len(attempts) != 0 {
		t.Errorf("attempts = %v, want none", attempts)
	}
}

func TestChain_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := NewFunc("A", models.CapabilityContent, func(ctx context.Context, _ []byte) ([]byte, error) {
		cancel()
		return nil, Transient(errors.New("flaky"))
	})
	b := ok("B", "from B")

	chain := newTestChain([]Provider{a, b}, ChainOptions{Retry: models.RetryPolicy{MaxRetries: 3}})
	_, _, err := chain.Invoke(ctx, testCall)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if b.calls.Load() != 0 {
		t.Error("chain continued after cancellation")
	}
}

func TestChain_CallTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	// Ignores its context entirely.
	slow := NewFunc("slow", models.CapabilityContent, func(context.Context, []byte) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	b := ok("B", "from B")

	chain := newTestChain([]Provider{slow, b}, ChainOptions{CallTimeout: 20 * time.Millisecond})
	start := time.Now()
	out, attempts, err := chain.Invoke(context.Background(), testCall)
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if string(out) != "from B" {
		t.Errorf("Invoke() = %q, want from B", out)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Invoke() took %v, call timeout not enforced", elapsed)
	}
	want := []string{"slow:error", "B:success"}
	if got := outcomes(attempts); !equalStrings(got, want) {
		t.Errorf("attempts = %v, want %v", got, want)
	}
}

func TestChain_ProviderPanic(t *testing.T) {
	bad := NewFunc("bad", models.CapabilityContent, func(context.Context, []byte) ([]byte, error) {
		panic("nil map")
	})
	b := ok("B", "from B")

	chain := newTestChain([]Provider{bad, b}, ChainOptions{Retry: models.RetryPolicy{MaxRetries: 2}})
	out, _, err := chain.Invoke(context.Background(), testCall)
	if err != nil || string(out) != "from B" {
		t.Errorf("Invoke() = %q, %v; want from B", out, err)
	}
}

func TestChain_Providers(t *testing.T) {
	chain := NewChain(models.CapabilityContent, []Provider{ok("x", ""), ok("y", "")}, ChainOptions{})
	if got := chain.Providers(); !equalStrings(got, []string{"x", "y"}) {
		t.Errorf("Providers() = %v", got)
	}
	if chain.Len() != 2 {
		t.Errorf("Len() = %d", chain.Len())
	}
}

func ExampleChain_Invoke() {
	primary := NewFunc("primary", models.CapabilityContent, func(context.Context, []byte) ([]byte, error) {
		return nil, Permanent(errors.New("invalid api key"))
	})
	backup := NewFunc("backup", models.CapabilityContent, func(context.Context, []byte) ([]byte, error) {
		return []byte(`{"content":"<p>hello</p>"}`), nil
	})

	chain := NewChain(models.CapabilityContent, []Provider{primary, backup}, ChainOptions{})
	out, attempts, _ := chain.Invoke(context.Background(), Call{Stage: models.StageContent, Keyword: "hello"})
	fmt.Println(string(out))
	for _, a := range attempts {
		fmt.Println(a.Provider, a.Outcome)
	}
	// Output:
	// {"content":"<p>hello</p>"}
	// primary error
	// backup success
}
