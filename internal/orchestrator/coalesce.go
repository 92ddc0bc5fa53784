package orchestrator

import (
	"context"
	"slices"
	"sync"

	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

// flight is one in-progress live stage shared by every caller with the
// same fingerprint.
type flight struct {
	done    chan struct{}
	resp    *request.Response
	err     error
	waiters int
	cancel  context.CancelCauseFunc
}

// coalescer runs at most one live stage per key. The work runs on a context
// detached from every caller and ends only when the last waiter leaves, so
// it lasts as long as the most patient one. The flight context is canceled
// with that waiter's reason: context.DeadlineExceeded when its time ran out,
// context.Canceled when it walked away.
type coalescer struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newCoalescer() *coalescer {
	return &coalescer{flights: make(map[string]*flight)}
}

// do returns fn's result for key. shared reports whether the caller joined
// a flight started by someone else.
func (c *coalescer) do(
	ctx context.Context,
	key string,
	fn func(ctx context.Context) (*request.Response, error),
) (resp *request.Response, err error, shared bool) {
	c.mu.Lock()
	f, shared := c.flights[key]
	if !shared {
		f = c.start(ctx, key, fn)
	}
	f.waiters++
	c.mu.Unlock()

	select {
	case <-f.done:
		return cloneResponse(f.resp), f.err, shared

	case <-ctx.Done():
		c.mu.Lock()
		f.waiters--
		if f.waiters == 0 {
			f.cancel(ctx.Err())
			if c.flights[key] == f {
				delete(c.flights, key)
			}
		}
		c.mu.Unlock()
		return nil, ctx.Err(), shared
	}
}

// start must be called with c.mu held.
func (c *coalescer) start(
	ctx context.Context,
	key string,
	fn func(ctx context.Context) (*request.Response, error),
) *flight {
	fctx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))

	f := &flight{done: make(chan struct{}), cancel: cancel}
	c.flights[key] = f

	go func() {
		resp, err := fn(fctx)

		c.mu.Lock()
		f.resp, f.err = resp, err
		if c.flights[key] == f {
			delete(c.flights, key)
		}
		c.mu.Unlock()

		cancel(nil)
		close(f.done)
	}()
	return f
}

func (c *coalescer) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flights)
}

func cloneResponse(r *request.Response) *request.Response {
	if r == nil {
		return nil
	}
	out := *r
	out.Payload = slices.Clone(r.Payload)
	return &out
}
