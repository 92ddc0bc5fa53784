package metrics

import (
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

// Observer receives the orchestrator's internal events. Implementations
// must not block.
type Observer interface {
	OnOutcome(backendID string, success bool, latency time.Duration)
	OnCacheEvent(kind cache.EventKind, tier cache.Tier)
	OnCircuitTransition(backendID string, from, to circuitbreaker.State)
	OnResponse(source request.Source, elapsed time.Duration)
}

// Fanout forwards every event to each observer in order.
type Fanout []Observer

func (f Fanout) OnOutcome(backendID string, success bool, latency time.Duration) {
	for _, o := range f {
		o.OnOutcome(backendID, success, latency)
	}
}

func (f Fanout) OnCacheEvent(kind cache.EventKind, tier cache.Tier) {
	for _, o := range f {
		o.OnCacheEvent(kind, tier)
	}
}

func (f Fanout) OnCircuitTransition(backendID string, from, to circuitbreaker.State) {
	for _, o := range f {
		o.OnCircuitTransition(backendID, from, to)
	}
}

func (f Fanout) OnResponse(source request.Source, elapsed time.Duration) {
	for _, o := range f {
		o.OnResponse(source, elapsed)
	}
}
