package selector

import (
	"cmp"
	"slices"

	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
)

// Scorer rates a backend; higher is better.
type Scorer interface {
	Score(backendID string) float64
}

// Gate decides whether a backend may be called right now. Granting may
// reserve a permit, so Allow is only asked of the candidate about to be used.
type Gate interface {
	Allow(backendID string) bool
}

// BreakerGate adapts a circuit breaker registry to Gate. Unregistered
// backends are never allowed.
type BreakerGate struct {
	Registry *circuitbreaker.Registry
}

func (g BreakerGate) Allow(backendID string) bool {
	cb := g.Registry.Get(backendID)
	return cb != nil && cb.Allow()
}

// Selector picks the best available backend for a capability.
type Selector struct {
	backends []*backend.Backend
	scorer   Scorer
	gate     Gate
}

func New(backends []*backend.Backend, scorer Scorer, gate Gate) *Selector {
	return &Selector{
		backends: slices.Clone(backends),
		scorer:   scorer,
		gate:     gate,
	}
}

type candidate struct {
	backend *backend.Backend
	score   float64
}

// Rank lists the backends supporting capability and not in exclude, best
// first: score descending, then priority ascending, then cost ascending.
// Breaker state is not consulted.
func (s *Selector) Rank(capability backend.Capability, exclude []string) []*backend.Backend {
	candidates := s.rank(capability, exclude)
	out := make([]*backend.Backend, len(candidates))
	for i, c := range candidates {
		out[i] = c.backend
	}
	return out
}

// Select returns the top ranked backend whose gate allows a call, or nil.
// The returned backend holds whatever permit the gate reserved.
func (s *Selector) Select(capability backend.Capability, exclude []string) *backend.Backend {
	for _, c := range s.rank(capability, exclude) {
		if s.gate.Allow(c.backend.ID()) {
			return c.backend
		}
	}
	return nil
}

func (s *Selector) rank(capability backend.Capability, exclude []string) []candidate {
	candidates := make([]candidate, 0, len(s.backends))
	for _, b := range s.backends {
		if !b.Descriptor().Supports(capability) || slices.Contains(exclude, b.ID()) {
			continue
		}
		// Scores move under concurrent writers; read each once so the sort
		// sees a consistent view.
		candidates = append(candidates, candidate{backend: b, score: s.scorer.Score(b.ID())})
	}

	slices.SortStableFunc(candidates, func(a, b candidate) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		da, db := a.backend.Descriptor(), b.backend.Descriptor()
		if c := cmp.Compare(da.Priority(), db.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(da.CostWeight(), db.CostWeight())
	})
	return candidates
}
