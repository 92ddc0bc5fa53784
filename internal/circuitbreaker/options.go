package circuitbreaker

import "time"

type Option func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

func WithTransitionFunc(fn TransitionFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.onTransition = fn
	}
}
