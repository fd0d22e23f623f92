// Copyright 2026 © The Metis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"sort"
	"sync"
)

// BreakerFactory builds a Breaker for a key. Used to swap the in-process
// breaker for the store-backed one without changing callers.
type BreakerFactory func(name string, cfg BreakerConfig) Breaker

// Registry holds one Breaker per invocation key (typically the skill name)
// so that concurrent engine instances share failure state. Construct one per
// application root and pass it down explicitly.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]Breaker
	factory  BreakerFactory
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithBreakerFactory replaces the default in-process breaker factory.
func WithBreakerFactory(f BreakerFactory) RegistryOption {
	return func(r *Registry) {
		if f != nil {
			r.factory = f
		}
	}
}

// NewRegistry creates an empty breaker registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]Breaker),
		factory: func(name string, cfg BreakerConfig) Breaker {
			cfg.Name = name
			return NewCircuitBreaker(cfg)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the breaker for key, creating it from cfg on first use.
// Later calls for the same key return the existing breaker regardless of cfg.
func (r *Registry) GetOrCreate(key string, cfg BreakerConfig) Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	b := r.factory(key, cfg)
	r.breakers[key] = b
	return b
}

// Get returns the breaker for key if one exists.
func (r *Registry) Get(key string) (Breaker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[key]
	return b, ok
}

// Keys returns the registered breaker keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// States returns a state label per registered key, for metrics export.
func (r *Registry) States(ctx context.Context) map[string]CircuitBreakerState {
	r.mu.Lock()
	snapshot := make(map[string]Breaker, len(r.breakers))
	for k, b := range r.breakers {
		snapshot[k] = b
	}
	r.mu.Unlock()

	out := make(map[string]CircuitBreakerState, len(snapshot))
	for k, b := range snapshot {
		out[k] = b.State(ctx)
	}
	return out
}
