package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/salescoach/pkg/provider/llm"
)

// ErrBackendNotRegistered is returned by [Registry.CreateLLM] when no factory
// has been registered under the entry's backend.
var ErrBackendNotRegistered = errors.New("config: llm backend not registered")

// LLMFactory builds a provider from its configuration entry.
type LLMFactory func(ProviderEntry) (llm.Provider, error)

// Registry maps backend names to LLM provider factories. It is safe for
// concurrent use.
type Registry struct {
	mu  sync.RWMutex
	llm map[string]LLMFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{llm: make(map[string]LLMFactory)}
}

// RegisterLLM registers a factory under backend. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) RegisterLLM(backend string, factory LLMFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[backend] = factory
}

// Backends returns the registered backend names in sorted order.
func (r *Registry) Backends() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llm))
	for n := range r.llm {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// CreateLLM instantiates a provider using the factory registered under
// entry.Backend. Returns [ErrBackendNotRegistered] if there is none.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (provider %q)", ErrBackendNotRegistered, entry.Backend, entry.Name)
	}
	p, err := factory(entry)
	if err != nil {
		return nil, fmt.Errorf("config: create %s/%s: %w", entry.Name, entry.Backend, err)
	}
	return p, nil
}
