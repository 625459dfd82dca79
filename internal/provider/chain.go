package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bulkpress/internal/cache"
	"bulkpress/internal/models"
	"bulkpress/internal/ratelimit"
)

// CacheProvider is the provider name recorded for cache hits.
const CacheProvider = "cache"

// Cache is the subset of cache.Manager the chain needs.
type Cache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool)
	Put(ctx context.Context, fingerprint string, value []byte, ttl time.Duration) error
}

// Call is one stage request sent through a chain.
type Call struct {
	Stage   models.Stage
	Keyword string
	// Input is the encoded request. It is part of the cache fingerprint,
	// so it must be deterministic for equal requests.
	Input []byte
	TTL   time.Duration
	// Accept validates a response before it is returned or cached. A
	// rejected response is a permanent failure of that provider.
	Accept func([]byte) error
}

// ChainOptions configures a Chain.
type ChainOptions struct {
	Cache   Cache             // optional
	Limiter ratelimit.Limiter // optional
	Retry   models.RetryPolicy
	// CallTimeout bounds each provider call. Zero leaves only the caller's
	// deadline.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Chain tries providers of one capability in fixed priority order, with
// caching, rate limiting and retries of transient failures.
type Chain struct {
	capability models.Capability
	providers  []Provider
	opts       ChainOptions
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewChain creates a chain over providers, which are tried in slice order.
func NewChain(capability models.Capability, providers []Provider, opts ChainOptions) *Chain {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		capability: capability,
		providers:  append([]Provider(nil), providers...),
		opts:       opts,
		logger:     logger.With("capability", string(capability)),
		sleep:      sleepContext,
	}
}

// Capability returns the capability the chain serves.
func (c *Chain) Capability() models.Capability { return c.capability }

// Providers returns the provider names in priority order.
func (c *Chain) Providers() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of providers.
func (c *Chain) Len() int { return len(c.providers) }

// Invoke returns the first accepted response for call, trying the cache and
// then each provider in order. Every attempt is returned for the audit
// trail, including on error. If the context ends, Invoke stops and returns
// an error wrapping ctx.Err(). If every provider fails it returns an
// *ExhaustedError.
func (c *Chain) Invoke(ctx context.Context, call Call) ([]byte, []models.ProviderAttempt, error) {
	var attempts []models.ProviderAttempt
	fp := cache.Fingerprint(call.Stage, call.Keyword, call.Input)

	if c.opts.Cache != nil {
		if v, ok := c.opts.Cache.Get(ctx, fp); ok {
			if call.Accept == nil || call.Accept(v) == nil {
				attempts = append(attempts, models.ProviderAttempt{
					Provider: CacheProvider,
					Stage:    call.Stage,
					Outcome:  models.OutcomeHitCache,
				})
				return v, attempts, nil
			}
			c.logger.Warn("ignoring cached value that no longer decodes", "stage", call.Stage, "fingerprint", fp)
		}
	}

	exhausted := &ExhaustedError{Capability: c.capability, Stage: call.Stage}
	for _, p := range c.providers {
		out, outcome, err := c.tryProvider(ctx, p, call, &attempts)
		if err != nil {
			return nil, attempts, err
		}
		if outcome == nil {
			if c.opts.Cache != nil {
				if err := c.opts.Cache.Put(ctx, fp, out, call.TTL); err != nil {
					c.logger.Warn("cache write failed", "stage", call.Stage, "fingerprint", fp, "error", err)
				}
			}
			return out, attempts, nil
		}
		exhausted.Outcomes = append(exhausted.Outcomes, *outcome)
	}

	return nil, attempts, exhausted
}

// tryProvider runs one provider with retries. It returns the value on
// success, an Outcome when the chain should move to the next provider, or
// an error when the caller's context ended.
func (c *Chain) tryProvider(ctx context.Context, p Provider, call Call, attempts *[]models.ProviderAttempt) ([]byte, *Outcome, error) {
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("%s stage: %w", call.Stage, err)
		}

		if !c.admit(ctx, p.Name()) {
			*attempts = append(*attempts, models.ProviderAttempt{
				Provider: p.Name(),
				Stage:    call.Stage,
				Outcome:  models.OutcomeRateLimited,
			})
			c.logger.Debug("provider rate limited", "provider", p.Name(), "stage", call.Stage)
			return nil, &Outcome{
				Provider: p.Name(),
				Kind:     models.KindRateLimitExceeded,
				Error:    "rate limit exceeded",
			}, nil
		}

		start := time.Now()
		out, err := c.call(ctx, p, call.Input)
		if err == nil && call.Accept != nil {
			if aerr := call.Accept(out); aerr != nil {
				err = Permanent(fmt.Errorf("rejected response: %w", aerr))
			}
		}
		latency := time.Since(start)

		if err == nil {
			*attempts = append(*attempts, models.ProviderAttempt{
				Provider: p.Name(),
				Stage:    call.Stage,
				Outcome:  models.OutcomeSuccess,
				Latency:  latency,
			})
			return out, nil, nil
		}

		*attempts = append(*attempts, models.ProviderAttempt{
			Provider: p.Name(),
			Stage:    call.Stage,
			Outcome:  models.OutcomeError,
			Latency:  latency,
			Error:    err.Error(),
		})

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, fmt.Errorf("%s stage: %w", call.Stage, ctxErr)
		}

		kind := Classify(err)
		if kind != models.KindTransient || retry >= c.opts.Retry.MaxRetries {
			c.logger.Warn("provider failed", "provider", p.Name(), "stage", call.Stage, "kind", kind, "retries", retry, "error", err)
			return nil, &Outcome{Provider: p.Name(), Kind: kind, Error: err.Error()}, nil
		}

		delay := c.opts.Retry.Delay(retry)
		c.logger.Debug("retrying provider", "provider", p.Name(), "stage", call.Stage, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, nil, fmt.Errorf("%s stage: %w", call.Stage, err)
		}
	}
}

// admit consults the limiter. Limiter failures admit the call.
func (c *Chain) admit(ctx context.Context, identity string) bool {
	if c.opts.Limiter == nil {
		return true
	}
	ok, err := c.opts.Limiter.Admit(ctx, identity)
	if err != nil {
		c.logger.Warn("rate limiter unavailable, admitting call", "provider", identity, "error", err)
		return true
	}
	return ok
}

type callResult struct {
	out []byte
	err error
}

// call invokes p under the per-call timeout and returns as soon as the
// context ends, even if the provider ignores it.
func (c *Chain) call(ctx context.Context, p Provider, input []byte) ([]byte, error) {
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- callResult{err: Permanent(fmt.Errorf("provider %s panicked: %v", p.Name(), r))}
			}
		}()
		out, err := p.Invoke(ctx, input)
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Transient(fmt.Errorf("provider %s: %w", p.Name(), err))
		}
		return nil, err
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
