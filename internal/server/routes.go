package server

import (
	"log/slog"

	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bulkpress/internal/cache"
	"bulkpress/internal/db"
	"bulkpress/internal/handlers/api"
	"bulkpress/internal/middleware"
	"bulkpress/internal/models"
	"bulkpress/internal/publish"
)

// Deps are the collaborators the HTTP routes serve.
type Deps struct {
	Runner     api.JobRunner
	Store      db.ReportStore
	Dispatcher *publish.Dispatcher // nil when publishing is not configured
	Cache      *cache.Manager
	Providers  api.ProviderLister
	Defaults   models.JobConfig
	Database   api.Pinger // nil when reports are kept in memory
	Gatherer   prometheus.Gatherer
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes(deps Deps) {
	// Initialize middleware
	auth := middleware.NewAuthMiddleware(s.Cfg.APIKeyList())
	if !auth.Enabled() {
		s.logger.Warn("API_KEYS is empty, the API does not require authentication")
	}

	// Initialize handlers
	jobHandler := api.NewJobHandler(deps.Runner, deps.Store, deps.Dispatcher, deps.Defaults, s.Cfg.MaxKeywordsPerBatch, s.logger.With(slog.String("component", "api")))
	cacheHandler := api.NewCacheHandler(deps.Cache)
	providerHandler := api.NewProviderHandler(deps.Providers, deps.Defaults)
	healthHandler := api.NewHealthHandler(deps.Database, deps.Cache.Stats)
	probeHandler := api.NewProbeHandler(deps.Database)

	// Operational routes
	s.App.Get("/health", healthHandler.Check)
	s.App.Get("/healthz", probeHandler.Liveness)
	s.App.Get("/readyz", probeHandler.Readiness)
	if deps.Gatherer != nil {
		s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// API routes
	v1 := s.App.Group("/api/v1", rateLimiter(s.Cfg.APIRateLimit), auth.RequireKey)
	v1.Post("/jobs", jobHandler.Create)
	v1.Get("/jobs", jobHandler.List)
	v1.Get("/jobs/:id", jobHandler.Get)
	v1.Delete("/cache", cacheHandler.Invalidate)
	v1.Get("/providers", providerHandler.List)
}
