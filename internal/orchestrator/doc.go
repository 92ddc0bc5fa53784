// Package orchestrator is the entry point for generation requests.
//
// Process walks an ordered list of degradation stages in a plain loop:
//
//  1. fresh cache entry for the fingerprint
//  2. live attempts across ranked backends, coalesced per fingerprint
//  3. stale cache entry, flagged degraded
//  4. static placeholder for the capability, flagged degraded
//
// The request deadline bounds the whole chain. Once it passes the live
// stage is skipped and the fallbacks run within a short grace window.
// Cancelled and abandoned attempts never count against a backend.
package orchestrator
