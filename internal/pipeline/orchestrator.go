package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"bulkpress/internal/models"
	"bulkpress/internal/provider"
	"bulkpress/internal/ratelimit"
)

// Options configures an Orchestrator. Cache and Limiter are process-lifetime
// collaborators shared by every job.
type Options struct {
	Registry *provider.Registry
	Cache    provider.Cache
	Limiter  ratelimit.Limiter
	Sink     MetricsSink
	Logger   *slog.Logger
}

// Orchestrator runs jobs: one executor run per keyword, at most
// Concurrency at a time, results in input order.
type Orchestrator struct {
	registry *provider.Registry
	cache    provider.Cache
	limiter  ratelimit.Limiter
	sink     MetricsSink
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	sink := opts.Sink
	if sink == nil {
		sink = NopSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry, _ = provider.NewRegistry()
	}
	return &Orchestrator{
		registry: registry,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		sink:     sink,
		logger:   logger,
	}
}

// Registry returns the provider registry.
func (o *Orchestrator) Registry() *provider.Registry { return o.registry }

// Run executes every keyword of job and returns the aggregate report.
//
// A nil or empty job, or a concurrency below 1, returns an error wrapping
// ErrValidation and no report. A provider configuration that cannot produce
// content returns a report in which every result failed with
// ConfigurationError, together with an error wrapping ErrConfiguration.
// Otherwise the error is nil and failures are carried by the results.
func (o *Orchestrator) Run(ctx context.Context, job *models.Job) (*models.AggregateReport, error) {
	if job == nil || job.Len() == 0 {
		return nil, fmt.Errorf("%w: no keywords", ErrValidation)
	}
	cfg := job.Config()
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	keywords := job.Keywords()
	logger := o.logger.With("job_id", job.ID().String())

	chains, err := o.chains(cfg, logger)
	if err != nil {
		results := make([]models.TaskResult, len(keywords))
		for i, kw := range keywords {
			results[i] = models.FailedResult(kw, i, models.KindConfiguration, err, nil)
		}
		report := models.NewAggregateReport(job.ID(), started, time.Now().UTC(), results)
		o.sink.JobFinished(report)
		logger.Error("job rejected by provider configuration", "error", err)
		return report, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	logger.Info("job started", "keywords", len(keywords), "concurrency", cfg.Concurrency)

	executor := NewExecutor(chains, cfg, logger)
	results := make([]models.TaskResult, len(keywords))

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for i, kw := range keywords {
		g.Go(func() error {
			results[i] = o.runTask(ctx, executor, kw, i, logger)
			return nil
		})
	}
	_ = g.Wait()

	report := models.NewAggregateReport(job.ID(), started, time.Now().UTC(), results)
	o.sink.JobFinished(report)
	logger.Info("job finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	return report, nil
}

// runTask isolates one task: a panic becomes an InternalError result.
func (o *Orchestrator) runTask(ctx context.Context, executor *Executor, keyword string, position int, logger *slog.Logger) (result models.TaskResult) {
	o.sink.TaskStarted()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "keyword", keyword, "panic", r, "stack", string(debug.Stack()))
			result = models.FailedResult(keyword, position, models.KindInternal, fmt.Errorf("panic: %v", r), nil)
		}
		o.sink.TaskFinished(result)
	}()
	return executor.Execute(ctx, keyword, position)
}

// chains resolves one fallback chain per capability for the job's provider
// order. Content must have at least one provider.
func (o *Orchestrator) chains(cfg models.JobConfig, logger *slog.Logger) (map[models.Capability]Invoker, error) {
	out := make(map[models.Capability]Invoker, len(models.Capabilities))
	for _, c := range models.Capabilities {
		providers, err := o.registry.Resolve(c, cfg.ProviderOrder[c])
		if err != nil {
			return nil, err
		}
		if len(providers) == 0 {
			if c == models.CapabilityContent {
				return nil, fmt.Errorf("%w for %s", provider.ErrNoProviders, c)
			}
			logger.Warn("no providers configured, stage will degrade", "capability", c)
		}
		out[c] = provider.NewChain(c, providers, provider.ChainOptions{
			Cache:       o.cache,
			Limiter:     o.limiter,
			Retry:       cfg.Retry,
			CallTimeout: cfg.StageTimeout,
			Logger:      logger,
		})
	}
	return out, nil
}
