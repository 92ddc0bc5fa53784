package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

// Prometheus exports events as Prometheus series on its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptLatency  *prometheus.HistogramVec
	cacheEvents     *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	breakerState    *prometheus.GaugeVec
	responses       *prometheus.CounterVec
	responseLatency *prometheus.HistogramVec
}

func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Completed backend call attempts by outcome.",
		}, []string{"backend", "success"}),
		attemptLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_attempt_duration_seconds",
			Help:      "Latency of completed backend call attempts.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"backend"}),
		cacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache hits, misses and evictions by tier.",
		}, []string{"event", "tier"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"backend", "from", "to"}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Current breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"backend"}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Answered requests by source.",
		}, []string{"source"}),
		responseLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "End to end request latency by source.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
	}
}

func (p *Prometheus) OnOutcome(backendID string, success bool, latency time.Duration) {
	p.attempts.WithLabelValues(backendID, strconv.FormatBool(success)).Inc()
	p.attemptLatency.WithLabelValues(backendID).Observe(latency.Seconds())
}

func (p *Prometheus) OnCacheEvent(kind cache.EventKind, tier cache.Tier) {
	p.cacheEvents.WithLabelValues(string(kind), string(tier)).Inc()
}

func (p *Prometheus) OnCircuitTransition(backendID string, from, to circuitbreaker.State) {
	p.transitions.WithLabelValues(backendID, from.String(), to.String()).Inc()
	p.breakerState.WithLabelValues(backendID).Set(float64(to))
}

func (p *Prometheus) OnResponse(source request.Source, elapsed time.Duration) {
	p.responses.WithLabelValues(string(source)).Inc()
	p.responseLatency.WithLabelValues(string(source)).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry for tests and extra collectors.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}
