package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bulkpress/internal/models"
	"bulkpress/internal/validation"
)

const (
	maxResponseBytes = 8 << 20
	maxErrorBody     = 512
	userAgent        = "bulkpress/1.0"
)

// HTTPConfig describes a JSON-over-HTTP provider endpoint.
type HTTPConfig struct {
	Name       string
	Capability models.Capability
	Endpoint   string
	APIKey     string
	Timeout    time.Duration
	Headers    map[string]string
}

// HTTPProvider POSTs the stage request to an endpoint and returns the
// response body. Non-2xx responses become *StatusError.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPProvider validates cfg and creates the provider. cfg.Timeout bounds
// every call, whether or not a client is given.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client) (*HTTPProvider, error) {
	if cfg.Name == "" {
		return nil, errors.New("provider name is required")
	}
	if !cfg.Capability.Valid() {
		return nil, fmt.Errorf("provider %s: unknown capability %q", cfg.Name, cfg.Capability)
	}
	if valid, msg := validation.ValidateURL(cfg.Endpoint); !valid {
		return nil, fmt.Errorf("provider %s: %s", cfg.Name, msg)
	}
	return &HTTPProvider{cfg: cfg, client: clientWithTimeout(client, cfg.Timeout)}, nil
}

// clientWithTimeout returns client bounded by timeout. A nil client gets a
// new one (30s if timeout is unset). A shared client is copied so its
// transport is reused without changing the caller's timeout.
func clientWithTimeout(client *http.Client, timeout time.Duration) *http.Client {
	if client == nil {
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return &http.Client{Timeout: timeout}
	}
	if timeout <= 0 || client.Timeout == timeout {
		return client
	}
	c := *client
	c.Timeout = timeout
	return &c
}

func (p *HTTPProvider) Name() string                  { return p.cfg.Name }
func (p *HTTPProvider) Capability() models.Capability { return p.cfg.Capability }

// Invoke sends req as the JSON body.
func (p *HTTPProvider) Invoke(ctx context.Context, req []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint, bytes.NewReader(req))
	if err != nil {
		return nil, Permanent(fmt.Errorf("building request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if p.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, Transient(fmt.Errorf("%s: %w", p.cfg.Name, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, Transient(fmt.Errorf("%s: reading response: %w", p.cfg.Name, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &StatusError{Provider: p.cfg.Name, StatusCode: resp.StatusCode, Body: msg}
	}

	return body, nil
}
