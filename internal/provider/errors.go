package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"bulkpress/internal/models"
)

// Provider error sentinels.
var (
	// ErrTransient marks a failure worth retrying on the same provider.
	ErrTransient = errors.New("transient provider error")
	// ErrPermanent marks a failure that will not succeed on retry.
	ErrPermanent = errors.New("permanent provider error")

	ErrAllProvidersExhausted = errors.New("all providers exhausted")
	ErrNoProviders           = errors.New("no providers configured")
	ErrUnknownProvider       = errors.New("unknown provider")
	ErrDuplicateProvider     = errors.New("duplicate provider name")
	ErrCapabilityMismatch    = errors.New("provider does not serve capability")
)

// Transient wraps err so Classify treats it as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err so Classify never retries it.
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// StatusError is a non-2xx response from an HTTP provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Retryable reports whether the status is worth retrying: 429 and 5xx.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Classify maps a provider error to transient or permanent. Timeouts,
// connection failures, 429 and 5xx responses are transient. 4xx responses,
// rejected responses and anything unrecognized are permanent.
func Classify(err error) models.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrPermanent) {
		return models.KindPermanent
	}
	if errors.Is(err, ErrTransient) {
		return models.KindTransient
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Retryable() {
			return models.KindTransient
		}
		return models.KindPermanent
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return models.KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.KindTransient
	}

	return models.KindPermanent
}

// Outcome is how one provider ended during a chain invocation.
type Outcome struct {
	Provider string           `json:"provider"`
	Kind     models.ErrorKind `json:"kind"`
	Error    string           `json:"error"`
}

// ExhaustedError is returned when no provider in a chain produced a value.
// It matches ErrAllProvidersExhausted with errors.Is.
type ExhaustedError struct {
	Capability models.Capability
	Stage      models.Stage
	Outcomes   []Outcome
}

func (e *ExhaustedError) Error() string {
	if len(e.Outcomes) == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Stage, ErrAllProvidersExhausted, ErrNoProviders)
	}
	parts := make([]string, 0, len(e.Outcomes))
	for _, o := range e.Outcomes {
		parts = append(parts, fmt.Sprintf("%s (%s: %s)", o.Provider, o.Kind, o.Error))
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, ErrAllProvidersExhausted, strings.Join(parts, "; "))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrAllProvidersExhausted
}
