// Package cache implements the orchestrator's two-tier response cache.
//
// The memory tier is a byte-bounded LRU split into independently locked
// shards, so writes to different keys do not contend. It sits write-through
// over a byte-bounded LRU disk tier backed by any storage.Persistence. Reads
// check memory first, then disk, promoting disk hits back into memory.
//
// TTL is chosen per Put by the caller. Expired entries are never reported by
// Get, but they stay resident until LRU pressure evicts them so that
// GetStale can still serve them as a degraded fallback.
//
// Eviction is synchronous with insertion: after every operation each tier's
// measured size is within its configured bound.
package cache
