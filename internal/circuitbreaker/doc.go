// Package circuitbreaker isolates failing backends.
//
// Each backend owns one breaker with three states:
//
//   - CLOSED: calls pass through; consecutive failures inside the window are counted
//   - OPEN: calls are rejected until the cooldown elapses
//   - HALF_OPEN: a single probe call is admitted
//
// A failed probe reopens the breaker with a doubled cooldown, capped at
// MaxCooldown. A successful probe closes it and restores the base cooldown.
//
// Usage:
//
//	registry, err := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig(), []string{"openai", "local"})
//	cb := registry.Get("openai")
//	if cb.Allow() {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
