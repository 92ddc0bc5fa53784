package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

type EventType string

const (
	EventOutcome           EventType = "outcome"
	EventCache             EventType = "cache"
	EventCircuitTransition EventType = "circuit_transition"
	EventResponse          EventType = "response"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Duration  time.Duration
	Success   bool
	CacheKind cache.EventKind
	Tier      cache.Tier
	From      circuitbreaker.State
	To        circuitbreaker.State
	Source    request.Source
}

// Collector aggregates events on its own goroutine. Emitting never blocks:
// when the buffer is full the event is dropped and counted.
type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
	}
}

func (c *Collector) OnOutcome(backendID string, success bool, latency time.Duration) {
	c.Emit(MetricEvent{Type: EventOutcome, Backend: backendID, Success: success, Duration: latency})
}

func (c *Collector) OnCacheEvent(kind cache.EventKind, tier cache.Tier) {
	c.Emit(MetricEvent{Type: EventCache, CacheKind: kind, Tier: tier})
}

func (c *Collector) OnCircuitTransition(backendID string, from, to circuitbreaker.State) {
	c.Emit(MetricEvent{Type: EventCircuitTransition, Backend: backendID, From: from, To: to})
}

func (c *Collector) OnResponse(source request.Source, elapsed time.Duration) {
	c.Emit(MetricEvent{Type: EventResponse, Source: source, Duration: elapsed})
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventOutcome:
		c.metrics.RecordOutcome(event.Backend, event.Success, event.Duration)

	case EventCache:
		c.metrics.RecordCacheEvent(event.CacheKind, event.Tier)

	case EventCircuitTransition:
		c.metrics.RecordTransition(event.Backend, event.To)

	case EventResponse:
		c.metrics.RecordResponse(event.Source, event.Duration)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	snap := c.metrics.Snapshot()
	snap.DroppedEvents = c.dropped.Load()
	return snap
}
