package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

const maxSamples = 1000

type Metrics struct {
	mutex       sync.RWMutex
	attempts    map[string]int64
	failures    map[string]int64
	latencies   map[string][]time.Duration
	states      map[string]circuitbreaker.State
	transitions map[string]int64
	cache       map[cache.Tier]CacheMetrics
	sources     map[request.Source]int64
	responses   []time.Duration
	startTime   time.Time
}

type Snapshot struct {
	TotalRequests int64                       `json:"total_requests"`
	Uptime        time.Duration               `json:"uptime"`
	Sources       map[request.Source]int64    `json:"sources"`
	P50Response   time.Duration               `json:"p50_response"`
	P95Response   time.Duration               `json:"p95_response"`
	P99Response   time.Duration               `json:"p99_response"`
	Backends      map[string]BackendMetrics   `json:"backends"`
	Cache         map[cache.Tier]CacheMetrics `json:"cache"`
	DroppedEvents int64                       `json:"dropped_events"`
}

type BackendMetrics struct {
	Attempts    int64                `json:"attempts"`
	Failures    int64                `json:"failures"`
	State       circuitbreaker.State `json:"state"`
	Transitions int64                `json:"transitions"`
	AvgLatency  time.Duration        `json:"avg_latency"`
	P50Latency  time.Duration        `json:"p50_latency"`
	P95Latency  time.Duration        `json:"p95_latency"`
	P99Latency  time.Duration        `json:"p99_latency"`
}

type CacheMetrics struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:    make(map[string]int64),
		failures:    make(map[string]int64),
		latencies:   make(map[string][]time.Duration),
		states:      make(map[string]circuitbreaker.State),
		transitions: make(map[string]int64),
		cache:       make(map[cache.Tier]CacheMetrics),
		sources:     make(map[request.Source]int64),
		startTime:   time.Now(),
	}
}

func (m *Metrics) RecordOutcome(backend string, success bool, latency time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts[backend]++
	if !success {
		m.failures[backend]++
	}
	m.latencies[backend] = appendBounded(m.latencies[backend], latency)
}

func (m *Metrics) RecordCacheEvent(kind cache.EventKind, tier cache.Tier) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	cm := m.cache[tier]
	switch kind {
	case cache.EventHit:
		cm.Hits++
	case cache.EventMiss:
		cm.Misses++
	case cache.EventEvict:
		cm.Evictions++
	}
	m.cache[tier] = cm
}

func (m *Metrics) RecordTransition(backend string, to circuitbreaker.State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.states[backend] = to
	m.transitions[backend]++
}

func (m *Metrics) RecordResponse(source request.Source, elapsed time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sources[source]++
	m.responses = appendBounded(m.responses, elapsed)
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Sources:  make(map[request.Source]int64, len(m.sources)),
		Backends: make(map[string]BackendMetrics),
		Cache:    make(map[cache.Tier]CacheMetrics, len(m.cache)),
	}

	for source, n := range m.sources {
		snap.Sources[source] = n
		snap.TotalRequests += n
	}
	if len(m.responses) > 0 {
		sorted := sortedCopy(m.responses)
		snap.P50Response = percentile(sorted, 0.50)
		snap.P95Response = percentile(sorted, 0.95)
		snap.P99Response = percentile(sorted, 0.99)
	}
	for tier, cm := range m.cache {
		snap.Cache[tier] = cm
	}

	// Collect every backend seen by any event
	all := make(map[string]bool)
	for backend := range m.attempts {
		all[backend] = true
	}
	for backend := range m.states {
		all[backend] = true
	}

	for backend := range all {
		bm := BackendMetrics{
			Attempts:    m.attempts[backend],
			Failures:    m.failures[backend],
			State:       m.states[backend],
			Transitions: m.transitions[backend],
		}

		if durations := m.latencies[backend]; len(durations) > 0 {
			sorted := sortedCopy(durations)
			bm.AvgLatency = average(sorted)
			bm.P50Latency = percentile(sorted, 0.50)
			bm.P95Latency = percentile(sorted, 0.95)
			bm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Backends[backend] = bm
	}

	return snap
}

func appendBounded(samples []time.Duration, d time.Duration) []time.Duration {
	samples = append(samples, d)
	if len(samples) > maxSamples {
		samples = samples[1:]
	}
	return samples
}

func sortedCopy(durations []time.Duration) []time.Duration {
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	return sorted
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
