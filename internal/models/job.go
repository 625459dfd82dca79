package models

import (
	"time"

	"github.com/google/uuid"
)

// Capability is an abstract operation that interchangeable providers implement.
type Capability string

// The closed set of provider capabilities.
const (
	CapabilityResearch Capability = "research"
	CapabilityContent  Capability = "content"
	CapabilityImage    Capability = "image"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{CapabilityResearch, CapabilityContent, CapabilityImage}

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityResearch, CapabilityContent, CapabilityImage:
		return true
	}
	return false
}

// CapabilityFor returns the capability that serves a stage. Outlines are
// written by content providers.
func CapabilityFor(stage Stage) Capability {
	switch stage {
	case StageResearch:
		return CapabilityResearch
	case StageImage:
		return CapabilityImage
	default:
		return CapabilityContent
	}
}

// RetryPolicy controls retries of transient provider failures.
type RetryPolicy struct {
	MaxRetries   int           `json:"max_retries"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
}

// Delay returns the backoff before retry number n (0-based): the initial
// delay doubled n times, capped at MaxDelay.
func (p RetryPolicy) Delay(n int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < n; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// JobConfig is the configuration snapshot a job runs with.
type JobConfig struct {
	// ProviderOrder lists provider names per capability in priority order.
	// A missing capability uses every registered provider in registration order.
	ProviderOrder  map[Capability][]string `json:"provider_order,omitempty"`
	Concurrency    int                     `json:"concurrency"`
	StageTimeout   time.Duration           `json:"stage_timeout"`
	TaskTimeout    time.Duration           `json:"task_timeout"`
	Retry          RetryPolicy             `json:"retry"`
	CacheTTL       map[Stage]time.Duration `json:"cache_ttl,omitempty"`
	GenerateImages bool                    `json:"generate_images"`
	MaxImages      int                     `json:"max_images"`
	Language       string                  `json:"language"`
	ContentLength  int                     `json:"content_length"`
}

// DefaultCacheTTL is the cache TTL of each stage when none is configured.
var DefaultCacheTTL = map[Stage]time.Duration{
	StageResearch: 24 * time.Hour,
	StageOutline:  24 * time.Hour,
	StageContent:  7 * 24 * time.Hour,
	StageImage:    7 * 24 * time.Hour,
}

// TTLFor returns the cache TTL configured for a stage, falling back to
// DefaultCacheTTL.
func (c JobConfig) TTLFor(stage Stage) time.Duration {
	if ttl, ok := c.CacheTTL[stage]; ok {
		return ttl
	}
	return DefaultCacheTTL[stage]
}

// clone returns a deep copy so a job's snapshot cannot be changed through
// the caller's maps.
func (c JobConfig) clone() JobConfig {
	cp := c
	if c.ProviderOrder != nil {
		cp.ProviderOrder = make(map[Capability][]string, len(c.ProviderOrder))
		for k, v := range c.ProviderOrder {
			cp.ProviderOrder[k] = append([]string(nil), v...)
		}
	}
	if c.CacheTTL != nil {
		cp.CacheTTL = make(map[Stage]time.Duration, len(c.CacheTTL))
		for k, v := range c.CacheTTL {
			cp.CacheTTL[k] = v
		}
	}
	return cp
}

// Job is an immutable batch of keywords plus the configuration it runs with.
type Job struct {
	id        uuid.UUID
	keywords  []string
	config    JobConfig
	createdAt time.Time
}

// NewJob snapshots keywords and config. Keywords must already be validated
// and deduplicated.
func NewJob(id uuid.UUID, keywords []string, cfg JobConfig) *Job {
	return &Job{
		id:        id,
		keywords:  append([]string(nil), keywords...),
		config:    cfg.clone(),
		createdAt: time.Now().UTC(),
	}
}

// ID returns the job identifier.
func (j *Job) ID() uuid.UUID { return j.id }

// Keywords returns a copy of the job's keywords in input order.
func (j *Job) Keywords() []string { return append([]string(nil), j.keywords...) }

// Len returns the number of keywords.
func (j *Job) Len() int { return len(j.keywords) }

// Config returns a copy of the configuration snapshot.
func (j *Job) Config() JobConfig { return j.config.clone() }

// CreatedAt returns when the job was created.
func (j *Job) CreatedAt() time.Time { return j.createdAt }
