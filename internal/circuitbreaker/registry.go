package circuitbreaker

import (
	"fmt"
	"maps"
	"slices"
)

// Registry owns one breaker per backend. The set is fixed at construction
// so lookups need no lock.
type Registry struct {
	breakers map[string]*CircuitBreaker
}

func NewRegistry(cfg Config, backendIDs []string, opts ...Option) (*Registry, error) {
	r := &Registry{breakers: make(map[string]*CircuitBreaker, len(backendIDs))}
	for _, id := range backendIDs {
		if _, dup := r.breakers[id]; dup {
			return nil, fmt.Errorf("duplicate backend id %q", id)
		}
		r.breakers[id] = NewCircuitBreaker(id, cfg, opts...)
	}
	return r, nil
}

// Get returns the breaker for backendID, or nil when it was never registered.
func (r *Registry) Get(backendID string) *CircuitBreaker {
	return r.breakers[backendID]
}

func (r *Registry) IDs() []string {
	return slices.Sorted(maps.Keys(r.breakers))
}

// Reset closes every breaker.
func (r *Registry) Reset() {
	for _, cb := range r.breakers {
		cb.Reset()
	}
}

func (r *Registry) Stats() map[string]State {
	stats := make(map[string]State, len(r.breakers))
	for id, cb := range r.breakers {
		stats[id] = cb.State()
	}
	return stats
}
