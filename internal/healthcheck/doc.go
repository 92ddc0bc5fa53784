// Package healthcheck tracks rolling per-backend call outcomes.
//
// The Monitor is the only writer of health statistics. Each outcome lands
// in a sliding window bounded by count and age, updates an EWMA of latency,
// and drives the backend's circuit breaker. Score combines recent failure
// rate with p95 and EWMA latency into a single number where higher is better.
package healthcheck
