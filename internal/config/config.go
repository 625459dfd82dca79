package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Environment
	Env string `env:"ENV, default=development"`

	// Server
	ServerAddr   string `env:"SERVER_ADDR, default=:3000"`
	BaseURL      string `env:"BASE_URL, default=http://localhost:3000"`
	APIKeys      string `env:"API_KEYS"`                   // Comma-separated bearer keys; empty disables auth
	CORSOrigins  string `env:"CORS_ORIGINS"`               // Comma-separated allowed origins
	APIRateLimit int    `env:"API_RATE_LIMIT, default=60"` // Requests per minute per client

	// Persistence. Empty DATABASE_URL keeps reports in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	// Cache
	RedisURL       string `env:"REDIS_URL"` // Shared cache level and rate limiter
	CacheKeyPrefix string `env:"CACHE_KEY_PREFIX, default=bulkpress:cache:"`
	LocalCacheSize int    `env:"LOCAL_CACHE_SIZE, default=1024"`

	// Pipeline
	PipelineFile        string `env:"PIPELINE_CONFIG, default=config.yaml"`
	MaxKeywordsPerBatch int    `env:"MAX_KEYWORDS_PER_BATCH, default=50"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogFormat string `env:"LOG_FORMAT, default=text"` // "text" or "json"

	// Resource monitor. Zero disables it.
	MonitorInterval time.Duration `env:"MONITOR_INTERVAL, default=30s"`

	// WordPress publishing
	WordPressURL         string        `env:"WORDPRESS_URL"`
	WordPressUsername    string        `env:"WORDPRESS_USERNAME"`
	WordPressAppPassword string        `env:"WORDPRESS_APP_PASSWORD"`
	WordPressStatus      string        `env:"WORDPRESS_POST_STATUS, default=draft"`
	WordPressTimeout     time.Duration `env:"WORDPRESS_TIMEOUT, default=30s"`

	// SMTP job notifications
	SMTPEnabled  bool   `env:"SMTP_ENABLED"`
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT, default=587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME, default=bulkpress"`
	SMTPTLS      string `env:"SMTP_TLS, default=starttls"` // "none", "tls" or "starttls"
	NotifyEmails string `env:"NOTIFY_EMAILS"`              // Comma-separated recipients of job reports

	SiteTitle string `env:"SITE_TITLE, default=bulkpress"`
}

// Load reads a .env file if present, then configuration from environment
// variables with sensible defaults.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	c, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var cfg Config
	if err := envconfig.ProcessWith(c, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
		return fmt.Errorf("invalid SERVER_ADDR %q: %w", c.ServerAddr, err)
	}
	if c.LocalCacheSize < 1 {
		return fmt.Errorf("expected LOCAL_CACHE_SIZE to be at least 1 but received: %d", c.LocalCacheSize)
	}
	if c.MaxKeywordsPerBatch < 1 {
		return fmt.Errorf("expected MAX_KEYWORDS_PER_BATCH to be at least 1 but received: %d", c.MaxKeywordsPerBatch)
	}
	if c.APIRateLimit < 0 {
		return fmt.Errorf("expected API_RATE_LIMIT to be non-negative but received: %d", c.APIRateLimit)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("expected LOG_FORMAT to be text or json but received: %q", c.LogFormat)
	}
	switch c.SMTPTLS {
	case "none", "tls", "starttls":
	default:
		return fmt.Errorf("expected SMTP_TLS to be none, tls or starttls but received: %q", c.SMTPTLS)
	}
	if c.SMTPPort < 1 || c.SMTPPort > 65535 {
		return fmt.Errorf("expected SMTP_PORT to be between 1 and 65535 but received: %d", c.SMTPPort)
	}
	return nil
}

// IsDev returns true if the environment is set to development.
func (c *Config) IsDev() bool {
	return c.Env == "development" || c.Env == "dev"
}

// IsEmailEnabled returns true if SMTP is switched on and minimally configured.
func (c *Config) IsEmailEnabled() bool {
	return c.SMTPEnabled && c.SMTPHost != "" && c.SMTPFrom != ""
}

// IsPublishEnabled returns true if WordPress publishing is configured.
func (c *Config) IsPublishEnabled() bool {
	return c.WordPressURL != "" && c.WordPressUsername != "" && c.WordPressAppPassword != ""
}

// APIKeyList returns the configured API keys.
func (c *Config) APIKeyList() []string {
	return splitList(c.APIKeys)
}

// NotifyRecipients returns the addresses that receive job reports.
func (c *Config) NotifyRecipients() []string {
	return splitList(c.NotifyEmails)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
