// Package selector chooses which backend serves a request.
//
// Backends are filtered by capability and by the caller's exclusions, ranked
// by health score, declared priority and cost weight, and the first one whose
// circuit breaker admits a call is returned.
package selector
