package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"bulkpress/internal/models"
	"bulkpress/internal/validation"
)

// NewJob normalizes and deduplicates keywords and snapshots cfg into an
// immutable job. The first occurrence of a duplicate keeps its position.
// maxKeywords of zero means no batch size limit.
func NewJob(keywords []string, cfg models.JobConfig, maxKeywords int) (*models.Job, error) {
	deduped := validation.DedupeKeywords(keywords)
	if len(deduped) == 0 {
		return nil, fmt.Errorf("%w: no keywords", ErrValidation)
	}
	if maxKeywords > 0 && len(deduped) > maxKeywords {
		return nil, fmt.Errorf("%w: %d keywords exceeds the limit of %d", ErrValidation, len(deduped), maxKeywords)
	}
	for i, kw := range deduped {
		if ok, msg := validation.ValidateKeyword(kw); !ok {
			return nil, fmt.Errorf("%w: keyword %d (%q): %s", ErrValidation, i, kw, msg)
		}
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return models.NewJob(uuid.New(), deduped, cfg), nil
}

func validateConfig(cfg models.JobConfig) error {
	if cfg.Concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", ErrValidation, cfg.Concurrency)
	}
	if cfg.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrValidation)
	}
	for c := range cfg.ProviderOrder {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown capability %q in provider order", ErrConfiguration, c)
		}
	}
	return nil
}
