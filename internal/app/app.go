// Package app wires configuration into the running components shared by the
// HTTP server and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"bulkpress/internal/cache"
	"bulkpress/internal/config"
	"bulkpress/internal/db"
	"bulkpress/internal/email"
	"bulkpress/internal/jobs"
	"bulkpress/internal/metrics"
	"bulkpress/internal/pipeline"
	"bulkpress/internal/provider"
	"bulkpress/internal/publish"
	"bulkpress/internal/ratelimit"
	"bulkpress/internal/server"
)

// App holds the process-lifetime components.
type App struct {
	Config       *config.Config
	Pipeline     *config.PipelineConfig
	Logger       *slog.Logger
	Registry     *provider.Registry
	Cache        *cache.Manager
	Limiter      ratelimit.Limiter
	Store        db.ReportStore
	DB           *db.DB // nil when reports are kept in memory
	Metrics      *prometheus.Registry
	Recorder     *metrics.Recorder
	Notifier     *email.Notifier
	Orchestrator *pipeline.Orchestrator
	Dispatcher   *publish.Dispatcher // nil when publishing is not configured
	Monitor      *jobs.ResourceMonitor
}

// Options tune Build.
type Options struct {
	// Getenv resolves provider API keys. Defaults to os.Getenv.
	Getenv func(string) string
	// HTTPClient is shared by providers and the publisher. Each copy keeps
	// its own configured timeout. Nil gives every component its own client.
	HTTPClient *http.Client
	// SkipDatabase keeps reports in memory even when DATABASE_URL is set.
	SkipDatabase bool
}

// Build loads the pipeline file and wires every component. The caller owns
// the returned App and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	pcfg, err := config.LoadPipelineConfig(cfg.PipelineFile)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Pipeline: pcfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	providers, err := pcfg.BuildProviders(opts.Getenv, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("building providers: %w", err)
	}
	if a.Registry, err = provider.NewRegistry(providers...); err != nil {
		return nil, err
	}

	if err := a.buildCache(ctx); err != nil {
		return nil, err
	}
	if err := a.buildStore(ctx, opts.SkipDatabase); err != nil {
		return nil, err
	}

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCacheCollector(a.Cache.Stats),
		metrics.NewResultCollector(a.Store),
	)
	a.Recorder = metrics.NewRecorder(a.Metrics)

	a.Notifier = email.NewNotifier(cfg, logger.With("component", "email"))
	if a.Notifier.IsEnabled() {
		logger.Info("job report emails enabled", "recipients", len(cfg.NotifyRecipients()))
	}

	a.Orchestrator = pipeline.NewOrchestrator(pipeline.Options{
		Registry: a.Registry,
		Cache:    a.Cache,
		Limiter:  a.Limiter,
		Sink:     pipeline.Sinks(a.Recorder, a.Notifier),
		Logger:   logger,
	})

	if cfg.IsPublishEnabled() {
		wp, err := publish.NewWordPress(publish.WordPressConfig{
			BaseURL:  cfg.WordPressURL,
			Username: cfg.WordPressUsername,
			Password: cfg.WordPressAppPassword,
			Status:   cfg.WordPressStatus,
			Timeout:  cfg.WordPressTimeout,
		}, opts.HTTPClient)
		if err != nil {
			return nil, fmt.Errorf("configuring wordpress: %w", err)
		}
		a.Dispatcher = publish.NewDispatcher(wp, logger.With("component", "publish"))
	}

	if cfg.MonitorInterval > 0 {
		a.Monitor = jobs.NewResourceMonitor(a.Recorder, cfg.MonitorInterval, a.Cache.Len, logger.With("component", "monitor"))
	}

	logger.Info("components ready",
		"providers", len(providers),
		"shared_cache", cfg.RedisURL != "",
		"database", a.DB != nil,
		"publish", a.Dispatcher != nil,
	)
	return a, nil
}

// buildCache creates the cache manager, with Redis as the shared level when
// REDIS_URL is set, and the provider rate limiter.
func (a *App) buildCache(ctx context.Context) error {
	var redisStore *cache.RedisStore
	if a.Config.RedisURL != "" {
		var err error
		redisStore, err = cache.NewRedisStore(ctx, a.Config.RedisURL, a.Config.CacheKeyPrefix)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
	}

	opts := cache.Options{
		LocalSize: a.Config.LocalCacheSize,
		Logger:    a.Logger.With("component", "cache"),
	}
	if redisStore != nil {
		opts.Shared = redisStore
	}
	mgr, err := cache.NewManager(opts)
	if err != nil {
		if redisStore != nil {
			_ = redisStore.Close()
		}
		return err
	}
	a.Cache = mgr

	limits := a.Pipeline.Limits()
	switch a.Pipeline.RateLimits.Backend {
	case "redis":
		if redisStore == nil {
			return errors.New("rate_limits.backend is redis but REDIS_URL is not set")
		}
		a.Limiter = ratelimit.NewRedisWindow(redisStore.Client(), limits, ratelimit.DefaultRedisPrefix)
	default:
		a.Limiter = ratelimit.NewSlidingWindow(limits)
	}
	return nil
}

// buildStore connects to Postgres and migrates it, or falls back to the
// in-memory report store.
func (a *App) buildStore(ctx context.Context, skip bool) error {
	if a.Config.DatabaseURL == "" || skip {
		a.Store = db.NewMemoryReports(0)
		return nil
	}

	database, err := db.New(ctx, a.Config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.RunMigrations(a.Config.DatabaseURL); err != nil {
		database.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	a.Logger.Info("migrations completed successfully")

	a.DB = database
	a.Store = database
	return nil
}

// StartBackground runs the resource monitor until ctx ends.
func (a *App) StartBackground(ctx context.Context) {
	if a.Monitor != nil {
		go a.Monitor.Start(ctx)
	}
}

// ServerDeps returns the collaborators of the HTTP routes.
func (a *App) ServerDeps() server.Deps {
	deps := server.Deps{
		Runner:     a.Orchestrator,
		Store:      a.Store,
		Dispatcher: a.Dispatcher,
		Cache:      a.Cache,
		Providers:  a.Registry,
		Defaults:   a.Pipeline.JobConfig(),
		Gatherer:   a.Metrics,
	}
	if a.DB != nil {
		deps.Database = a.DB
	}
	return deps
}

// Close waits for pending report mails, then releases the database pool
// and the shared cache connection.
func (a *App) Close() {
	if a.Notifier != nil {
		a.Notifier.Wait()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("closing cache", "error", err)
		}
	}
}
