// Package metrics records what the orchestrator does.
//
// Every component reports through the Observer interface: backend attempt
// outcomes, cache hits, misses and evictions, circuit transitions and the
// source of each answered request. Two observers are provided:
//
//   - Collector aggregates events on a dedicated goroutine fed by a buffered
//     channel and serves a JSON snapshot with latency percentiles
//   - Prometheus exports counters, gauges and histograms for scraping
//
// Fanout combines them. Emitting never blocks the request path; a full
// Collector buffer drops the event and counts the drop.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//	observer := metrics.Fanout{collector, metrics.NewPrometheus("orchestrator")}
//
//	observer.OnOutcome("openai", true, 150*time.Millisecond)
//	snapshot := collector.Snapshot()
package metrics
