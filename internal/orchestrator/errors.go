package orchestrator

import "errors"

var (
	// ErrUnavailable is returned when no live backend, cached entry or
	// static fallback could serve the request.
	ErrUnavailable = errors.New("orchestrator: unavailable")

	// ErrAllBackendsExhausted ends the live stage. It moves the chain on to
	// the fallback stages and never reaches callers of Process.
	ErrAllBackendsExhausted = errors.New("orchestrator: all backends exhausted")

	errCacheMiss  = errors.New("cache miss")
	errNoFallback = errors.New("no static fallback configured")
)
