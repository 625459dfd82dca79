package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bulkpress/internal/models"
	"bulkpress/internal/provider"
	"bulkpress/internal/ratelimit"
)

// PipelineConfig represents the structure of the pipeline YAML file.
// Provider definitions and per-stage tuning are easier to manage in YAML
// than in env vars.
type PipelineConfig struct {
	Providers  []ProviderConfig `yaml:"providers"`
	Pipeline   PipelineDefaults `yaml:"pipeline"`
	RateLimits RateLimitConfig  `yaml:"rate_limits"`
}

// ProviderConfig defines a provider. Type "http" (the default) calls
// Endpoint with JSON; type "static" answers every request with Response.
type ProviderConfig struct {
	Name       string            `yaml:"name"`
	Type       string            `yaml:"type,omitempty"`     // http or static
	Capability string            `yaml:"capability"`         // research, content or image
	Response   string            `yaml:"response,omitempty"` // Static response body
	Endpoint   string            `yaml:"endpoint"`
	APIKeyEnv  string            `yaml:"api_key_env,omitempty"` // Env var holding the key
	Timeout    time.Duration     `yaml:"timeout,omitempty"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

// Provider types.
const (
	ProviderHTTP   = "http"
	ProviderStatic = "static"
)

// PipelineDefaults are the job settings used when a request does not
// override them.
type PipelineDefaults struct {
	Concurrency    int                      `yaml:"concurrency"`
	StageTimeout   time.Duration            `yaml:"stage_timeout"`
	TaskTimeout    time.Duration            `yaml:"task_timeout"`
	GenerateImages bool                     `yaml:"generate_images"`
	MaxImages      int                      `yaml:"max_images"`
	Language       string                   `yaml:"language"`
	ContentLength  int                      `yaml:"content_length"`
	Retry          RetryConfig              `yaml:"retry"`
	CacheTTL       map[string]time.Duration `yaml:"cache_ttl"`
	Order          map[string][]string      `yaml:"order"` // Capability -> provider names in priority order
}

// RetryConfig defines backoff for transient provider failures.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// RateLimitConfig defines sliding-window limits per provider.
type RateLimitConfig struct {
	Backend   string                 `yaml:"backend"` // "memory" or "redis"
	Default   LimitConfig            `yaml:"default"`
	Providers map[string]LimitConfig `yaml:"providers,omitempty"`
}

// LimitConfig is one sliding-window limit.
type LimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// DefaultPipelineConfig returns the settings used when no file exists.
func DefaultPipelineConfig() *PipelineConfig {
	cfg := &PipelineConfig{}
	cfg.applyDefaults()
	return cfg
}

// LoadPipelineConfig loads the pipeline YAML file at path. A missing file
// yields the defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPipelineConfig(), nil
		}
		return nil, err
	}
	return ParsePipelineConfig(data)
}

// ParsePipelineConfig decodes, defaults and validates YAML pipeline config.
func ParsePipelineConfig(data []byte) (*PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *PipelineConfig) applyDefaults() {
	p := &c.Pipeline
	if p.Concurrency == 0 {
		p.Concurrency = 3
	}
	if p.StageTimeout == 0 {
		p.StageTimeout = 60 * time.Second
	}
	if p.TaskTimeout == 0 {
		p.TaskTimeout = 5 * time.Minute
	}
	if p.Language == "" {
		p.Language = "en"
	}
	if p.ContentLength == 0 {
		p.ContentLength = 1500
	}
	if p.Retry.MaxRetries == 0 && p.Retry.InitialDelay == 0 {
		p.Retry = RetryConfig{MaxRetries: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second}
	}
	if p.CacheTTL == nil {
		p.CacheTTL = make(map[string]time.Duration, len(models.DefaultCacheTTL))
	}
	for stage, ttl := range models.DefaultCacheTTL {
		if _, ok := p.CacheTTL[string(stage)]; !ok {
			p.CacheTTL[string(stage)] = ttl
		}
	}
	if c.RateLimits.Backend == "" {
		c.RateLimits.Backend = "memory"
	}
}

// Validate checks provider definitions and references between sections.
func (c *PipelineConfig) Validate() error {
	byName := make(map[string]models.Capability, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("providers[%d]: name is required", i)
		}
		if _, dup := byName[p.Name]; dup {
			return fmt.Errorf("providers[%d]: duplicate provider %q", i, p.Name)
		}
		capability := models.Capability(p.Capability)
		if !capability.Valid() {
			return fmt.Errorf("provider %s: unknown capability %q", p.Name, p.Capability)
		}
		switch p.Type {
		case "", ProviderHTTP:
			if p.Endpoint == "" {
				return fmt.Errorf("provider %s: endpoint is required", p.Name)
			}
		case ProviderStatic:
			if p.Response == "" {
				return fmt.Errorf("provider %s: response is required for static providers", p.Name)
			}
		default:
			return fmt.Errorf("provider %s: unknown type %q", p.Name, p.Type)
		}
		byName[p.Name] = capability
	}

	p := c.Pipeline
	if p.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1, got %d", p.Concurrency)
	}
	if p.MaxImages < 0 || p.Retry.MaxRetries < 0 {
		return errors.New("pipeline.max_images and pipeline.retry.max_retries must not be negative")
	}
	for stage := range p.CacheTTL {
		if !isStage(models.Stage(stage)) {
			return fmt.Errorf("pipeline.cache_ttl: unknown stage %q", stage)
		}
	}
	for capName, names := range p.Order {
		capability := models.Capability(capName)
		if !capability.Valid() {
			return fmt.Errorf("pipeline.order: unknown capability %q", capName)
		}
		for _, name := range names {
			got, ok := byName[name]
			if !ok {
				return fmt.Errorf("pipeline.order.%s: unknown provider %q", capName, name)
			}
			if got != capability {
				return fmt.Errorf("pipeline.order.%s: provider %q serves %s", capName, name, got)
			}
		}
	}

	switch c.RateLimits.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("rate_limits.backend must be memory or redis, got %q", c.RateLimits.Backend)
	}
	return nil
}

func isStage(s models.Stage) bool {
	for _, st := range models.Stages {
		if st == s {
			return true
		}
	}
	return false
}

// JobConfig converts the pipeline defaults into a job configuration.
func (c *PipelineConfig) JobConfig() models.JobConfig {
	p := c.Pipeline
	cfg := models.JobConfig{
		Concurrency:  p.Concurrency,
		StageTimeout: p.StageTimeout,
		TaskTimeout:  p.TaskTimeout,
		Retry: models.RetryPolicy{
			MaxRetries:   p.Retry.MaxRetries,
			InitialDelay: p.Retry.InitialDelay,
			MaxDelay:     p.Retry.MaxDelay,
		},
		GenerateImages: p.GenerateImages,
		MaxImages:      p.MaxImages,
		Language:       p.Language,
		ContentLength:  p.ContentLength,
	}
	if len(p.CacheTTL) > 0 {
		cfg.CacheTTL = make(map[models.Stage]time.Duration, len(p.CacheTTL))
		for stage, ttl := range p.CacheTTL {
			cfg.CacheTTL[models.Stage(stage)] = ttl
		}
	}
	if len(p.Order) > 0 {
		cfg.ProviderOrder = make(map[models.Capability][]string, len(p.Order))
		for capName, names := range p.Order {
			cfg.ProviderOrder[models.Capability(capName)] = append([]string(nil), names...)
		}
	}
	return cfg
}

// Limits converts the rate limit section.
func (c *PipelineConfig) Limits() ratelimit.Limits {
	limits := ratelimit.Limits{
		Default: ratelimit.Limit{
			MaxRequests: c.RateLimits.Default.MaxRequests,
			Window:      c.RateLimits.Default.Window,
		},
	}
	if len(c.RateLimits.Providers) > 0 {
		limits.Overrides = make(map[string]ratelimit.Limit, len(c.RateLimits.Providers))
		for name, l := range c.RateLimits.Providers {
			limits.Overrides[name] = ratelimit.Limit{MaxRequests: l.MaxRequests, Window: l.Window}
		}
	}
	return limits
}

// BuildProviders creates a provider per definition, reading API keys
// through getenv.
func (c *PipelineConfig) BuildProviders(getenv func(string) string, client *http.Client) ([]provider.Provider, error) {
	providers := make([]provider.Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if p.Type == ProviderStatic {
			providers = append(providers, provider.NewStatic(p.Name, models.Capability(p.Capability), []byte(p.Response)))
			continue
		}
		var key string
		if p.APIKeyEnv != "" {
			key = getenv(p.APIKeyEnv)
		}
		hp, err := provider.NewHTTPProvider(provider.HTTPConfig{
			Name:       p.Name,
			Capability: models.Capability(p.Capability),
			Endpoint:   p.Endpoint,
			APIKey:     key,
			Timeout:    p.Timeout,
			Headers:    p.Headers,
		}, client)
		if err != nil {
			return nil, err
		}
		providers = append(providers, hp)
	}
	return providers, nil
}
