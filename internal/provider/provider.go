// Package provider defines interchangeable external providers and the
// fallback chain that tries them in priority order.
package provider

import (
	"context"

	"bulkpress/internal/models"
)

// Provider is one external implementation of a capability. Invoke takes an
// encoded stage request and returns the encoded response.
type Provider interface {
	Name() string
	Capability() models.Capability
	Invoke(ctx context.Context, req []byte) ([]byte, error)
}

// InvokeFunc is the function shape of a provider call.
type InvokeFunc func(ctx context.Context, req []byte) ([]byte, error)

// Func adapts a plain function to the Provider interface.
type Func struct {
	name       string
	capability models.Capability
	fn         InvokeFunc
}

// NewFunc creates a function-backed provider.
func NewFunc(name string, capability models.Capability, fn InvokeFunc) *Func {
	return &Func{name: name, capability: capability, fn: fn}
}

func (f *Func) Name() string                  { return f.name }
func (f *Func) Capability() models.Capability { return f.capability }

func (f *Func) Invoke(ctx context.Context, req []byte) ([]byte, error) {
	return f.fn(ctx, req)
}

// Static always answers with the same response. It backs providers of
// type "static" in the pipeline YAML, which serve fixtures in development.
type Static struct {
	name       string
	capability models.Capability
	response   []byte
}

// NewStatic creates a provider that returns response for every request.
func NewStatic(name string, capability models.Capability, response []byte) *Static {
	return &Static{name: name, capability: capability, response: append([]byte(nil), response...)}
}

func (s *Static) Name() string                  { return s.name }
func (s *Static) Capability() models.Capability { return s.capability }

func (s *Static) Invoke(ctx context.Context, _ []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]byte(nil), s.response...), nil
}
