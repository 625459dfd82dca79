package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"

	"bulkpress/internal/cache"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports service health via JSON API.
type HealthHandler struct {
	db      Pinger
	stats   func() cache.Stats
	timeout time.Duration
}

// NewHealthHandler creates a new API health handler. database is nil when
// reports are kept in memory.
func NewHealthHandler(database Pinger, stats func() cache.Stats) *HealthHandler {
	return &HealthHandler{db: database, stats: stats, timeout: 2 * time.Second}
}

// Check returns 200 when every configured backend answers, 503 otherwise.
func (h *HealthHandler) Check(c fiber.Ctx) error {
	database := "memory"
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			return jsonErrorData(c, fiber.StatusServiceUnavailable, "database unavailable", fiber.Map{"database": "unavailable"})
		}
		database = "ok"
	}

	data := fiber.Map{"database": database}
	if h.stats != nil {
		s := h.stats()
		data["cache"] = fiber.Map{
			"local_entries": s.LocalSize,
			"hits":          s.Hits(),
			"misses":        s.Misses,
			"errors":        s.Errors,
		}
	}
	return jsonSuccess(c, data)
}
