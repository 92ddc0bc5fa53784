package handler

import (
	"net/http"

	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/healthcheck"
	"github.com/angeloszaimis/ai-orchestrator/internal/metrics"
)

type BreakerStats interface {
	Stats() map[string]circuitbreaker.State
}

type HealthSnapshots interface {
	Snapshots() map[string]healthcheck.Snapshot
}

type CacheStats interface {
	Stats() cache.Stats
}

type MetricsSnapshot interface {
	Snapshot() metrics.Snapshot
}

type healthResponse struct {
	Status   string                          `json:"status"`
	Breakers map[string]circuitbreaker.State `json:"breakers"`
}

// Health reports "ok" while at least one breaker admits calls and
// "degraded" otherwise. The gateway still answers from fallbacks, so the
// status code stays 200.
func Health(breakers BreakerStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := breakers.Stats()
		status := "degraded"
		for _, state := range stats {
			if state != circuitbreaker.StateOpen {
				status = "ok"
				break
			}
		}
		if len(stats) == 0 {
			status = "ok"
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: status, Breakers: stats})
	}
}

type statsResponse struct {
	Metrics metrics.Snapshot                `json:"metrics"`
	Health  map[string]healthcheck.Snapshot `json:"health"`
	Cache   cache.Stats                     `json:"cache"`
}

func Stats(m MetricsSnapshot, health HealthSnapshots, c CacheStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statsResponse{
			Metrics: m.Snapshot(),
			Health:  health.Snapshots(),
			Cache:   c.Stats(),
		})
	}
}
