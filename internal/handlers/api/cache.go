package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"bulkpress/internal/cache"
)

// Invalidator removes cache entries by fingerprint pattern.
type Invalidator interface {
	Invalidate(ctx context.Context, pattern string) (int, error)
}

// CacheHandler manages the result cache via JSON API.
type CacheHandler struct {
	cache Invalidator
}

// NewCacheHandler creates a new API cache handler.
func NewCacheHandler(c Invalidator) *CacheHandler {
	return &CacheHandler{cache: c}
}

// Invalidate removes every entry matching the pattern query parameter.
func (h *CacheHandler) Invalidate(c fiber.Ctx) error {
	pattern := c.Query("pattern")
	if pattern == "" {
		return jsonError(c, fiber.StatusBadRequest, "pattern is required")
	}

	removed, err := h.cache.Invalidate(c.Context(), pattern)
	if err != nil {
		if errors.Is(err, cache.ErrBadPattern) {
			return jsonError(c, fiber.StatusBadRequest, "invalid pattern")
		}
		return jsonErrorData(c, fiber.StatusBadGateway, "shared cache invalidation failed", fiber.Map{"removed": removed})
	}

	return jsonSuccess(c, fiber.Map{"pattern": pattern, "removed": removed})
}
