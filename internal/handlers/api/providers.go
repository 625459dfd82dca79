package api

import (
	"github.com/gofiber/fiber/v3"

	"bulkpress/internal/models"
)

// ProviderLister describes the configured providers.
type ProviderLister interface {
	Describe() map[models.Capability][]string
}

// ProviderHandler reports the provider setup via JSON API.
type ProviderHandler struct {
	providers ProviderLister
	defaults  models.JobConfig
}

// NewProviderHandler creates a new API provider handler.
func NewProviderHandler(providers ProviderLister, defaults models.JobConfig) *ProviderHandler {
	return &ProviderHandler{providers: providers, defaults: defaults}
}

// List returns the registered providers per capability and the configured
// fallback order.
func (h *ProviderHandler) List(c fiber.Ctx) error {
	order := h.defaults.ProviderOrder
	if order == nil {
		order = map[models.Capability][]string{}
	}
	return jsonSuccess(c, fiber.Map{
		"providers":       h.providers.Describe(),
		"order":           order,
		"generate_images": h.defaults.GenerateImages,
		"concurrency":     h.defaults.Concurrency,
	})
}
