package provider

import (
	"fmt"
	"sort"
	"sync"

	"bulkpress/internal/models"
)

// Registry holds the configured providers by name, in registration order.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Provider
	order  []string
}

// NewRegistry registers providers in order.
func NewRegistry(providers ...Provider) (*Registry, error) {
	r := &Registry{byName: make(map[string]Provider)}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(p Provider) error {
	if !p.Capability().Valid() {
		return fmt.Errorf("provider %s: unknown capability %q", p.Name(), p.Capability())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[p.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProvider, p.Name())
	}
	r.byName[p.Name()] = p
	r.order = append(r.order, p.Name())
	return nil
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Resolve returns the providers for capability in the given order. An empty
// order selects every provider of the capability in registration order.
// Unknown names and providers of another capability are configuration
// errors.
func (r *Registry) Resolve(capability models.Capability, order []string) ([]Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(order) == 0 {
		var out []Provider
		for _, name := range r.order {
			if p := r.byName[name]; p.Capability() == capability {
				out = append(out, p)
			}
		}
		return out, nil
	}

	out := make([]Provider, 0, len(order))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		p, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q for %s", ErrUnknownProvider, name, capability)
		}
		if p.Capability() != capability {
			return nil, fmt.Errorf("%w: %s is a %s provider, not %s", ErrCapabilityMismatch, name, p.Capability(), capability)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, p)
	}
	return out, nil
}

// Describe lists provider names per capability in registration order.
func (r *Registry) Describe() map[models.Capability][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.Capability][]string, len(models.Capabilities))
	for _, c := range models.Capabilities {
		out[c] = []string{}
	}
	for _, name := range r.order {
		c := r.byName[name].Capability()
		out[c] = append(out[c], name)
	}
	return out
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := append([]string(nil), r.order...)
	sort.Strings(names)
	return names
}
