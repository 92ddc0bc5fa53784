package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/request"
)

// Cache is the slice of the cache store the orchestrator needs.
type Cache interface {
	Get(ctx context.Context, key string) (*cache.Entry, bool)
	GetStale(ctx context.Context, key string) (*cache.Entry, bool)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Selector hands out the next backend to try. The returned backend holds
// its breaker permit.
type Selector interface {
	Select(capability backend.Capability, exclude []string) *backend.Backend
}

// HealthRecorder receives one outcome per completed attempt.
type HealthRecorder interface {
	RecordOutcome(backendID string, success bool, latency time.Duration)
}

// ResponseFunc observes every answered request.
type ResponseFunc func(source request.Source, elapsed time.Duration)

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithResponseFunc(fn ResponseFunc) Option {
	return func(o *Orchestrator) {
		o.onResponse = fn
	}
}

// stage is one step of the degradation chain. A nil response with an
// error means the stage could not serve and the next one runs.
type stage struct {
	name     string
	fallback bool
	run      func(ctx context.Context, req *request.Request) (*request.Response, error)
}

type Orchestrator struct {
	cfg        Config
	cache      Cache
	selector   Selector
	health     HealthRecorder
	breakers   *circuitbreaker.Registry
	flights    *coalescer
	logger     *slog.Logger
	onResponse ResponseFunc
}

func New(
	cfg Config,
	c Cache,
	selector Selector,
	health HealthRecorder,
	breakers *circuitbreaker.Registry,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg.withDefaults(),
		cache:    c,
		selector: selector,
		health:   health,
		breakers: breakers,
		flights:  newCoalescer(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process answers req from the best available source: fresh cache, live
// backends, stale cache, then the static fallback for the capability. The
// whole chain is bounded by the request deadline; once it passes, only the
// fallback stages run.
func (o *Orchestrator) Process(ctx context.Context, req *request.Request) (*request.Response, error) {
	if req == nil || req.Fingerprint == "" {
		return nil, &request.ValidationError{Err: errors.New("fingerprint: cannot be blank")}
	}

	start := time.Now()
	deadline := req.Deadline
	if deadline.IsZero() {
		deadline = start.Add(o.cfg.DefaultDeadline)
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	logger := o.logger.With(slog.String("fingerprint", req.Fingerprint))

	stages := []stage{
		{name: "cache", run: o.freshCache},
		{name: "live", run: o.live},
		{name: "stale", fallback: true, run: o.staleCache},
		{name: "static", fallback: true, run: o.staticFallback},
	}

	var graceCtx context.Context
	for _, st := range stages {
		stageCtx := ctx
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			if !st.fallback {
				continue
			}
			// Past the deadline the fallbacks get a short window of their own.
			if graceCtx == nil {
				var graceCancel context.CancelFunc
				graceCtx, graceCancel = context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FallbackGrace)
				defer graceCancel()
			}
			stageCtx = graceCtx
		}

		resp, err := st.run(stageCtx, req)
		if resp != nil {
			resp.Fingerprint = req.Fingerprint
			resp.Degraded = resp.Source.Degraded()
			if o.onResponse != nil {
				o.onResponse(resp.Source, time.Since(start))
			}
			logger.Debug("Request served",
				slog.String("source", string(resp.Source)),
				slog.String("backend", resp.BackendID),
				slog.Duration("latency", time.Since(start)))
			return resp, nil
		}
		logger.Debug("Stage skipped",
			slog.String("stage", st.name),
			slog.String("error", err.Error()))
	}

	logger.Warn("No source could serve request",
		slog.String("capability", string(req.Capability)))
	return nil, fmt.Errorf("%w: fingerprint %s", ErrUnavailable, req.Fingerprint)
}

func (o *Orchestrator) freshCache(ctx context.Context, req *request.Request) (*request.Response, error) {
	e, ok := o.cache.Get(ctx, req.Fingerprint)
	if !ok {
		return nil, errCacheMiss
	}
	return &request.Response{Payload: slices.Clone(e.Value), Source: request.SourceCache}, nil
}

func (o *Orchestrator) staleCache(ctx context.Context, req *request.Request) (*request.Response, error) {
	e, ok := o.cache.GetStale(ctx, req.Fingerprint)
	if !ok {
		return nil, errCacheMiss
	}
	return &request.Response{Payload: slices.Clone(e.Value), Source: request.SourceFallbackStale}, nil
}

func (o *Orchestrator) staticFallback(_ context.Context, req *request.Request) (*request.Response, error) {
	text, ok := o.cfg.Fallbacks[req.Capability]
	if !ok {
		return nil, errNoFallback
	}
	return &request.Response{Payload: []byte(text), Source: request.SourceFallbackStatic}, nil
}

// live runs the backend attempts, shared between concurrent callers with
// the same fingerprint.
func (o *Orchestrator) live(ctx context.Context, req *request.Request) (*request.Response, error) {
	resp, err, shared := o.flights.do(ctx, req.Fingerprint, func(ctx context.Context) (*request.Response, error) {
		return o.attempts(ctx, req)
	})
	if shared && resp != nil {
		o.logger.Debug("Joined in-flight request", slog.String("fingerprint", req.Fingerprint))
	}
	return resp, err
}

func (o *Orchestrator) attempts(ctx context.Context, req *request.Request) (*request.Response, error) {
	var (
		tried   []string
		lastErr error
	)

	for len(tried) < o.cfg.MaxBackends && ctx.Err() == nil {
		b := o.selector.Select(req.Capability, tried)
		if b == nil {
			break
		}
		tried = append(tried, b.ID())

		payload, err := o.invoke(ctx, b, req)
		if err != nil {
			lastErr = err
			continue
		}

		// The cache logs its own write failures; the live answer stands.
		_ = o.cache.Put(ctx, req.Fingerprint, payload, o.cfg.TTL(req.ContentClass))
		return &request.Response{Payload: payload, Source: request.SourceLive, BackendID: b.ID()}, nil
	}

	if lastErr == nil {
		return nil, fmt.Errorf("%w: no eligible backend for %q", ErrAllBackendsExhausted, req.Capability)
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrAllBackendsExhausted, len(tried), lastErr)
}

type invokeResult struct {
	payload []byte
	err     error
}

// invoke makes one attempt under the per-attempt timeout and reports the
// outcome. Abandoned attempts are not recorded; their probe permit is
// handed back instead.
func (o *Orchestrator) invoke(ctx context.Context, b *backend.Backend, req *request.Request) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, o.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan invokeResult, 1)
	go func() {
		payload, err := b.Invoke(attemptCtx, req.Capability, req.Payload)
		done <- invokeResult{payload: payload, err: err}
	}()

	var res invokeResult
	select {
	case res = <-done:
	case <-attemptCtx.Done():
		// Adapters must honour ctx; this covers the ones that do not.
		res = invokeResult{err: attemptCtx.Err()}
	}
	latency := time.Since(start)

	if res.err == nil {
		o.health.RecordOutcome(b.ID(), true, latency)
		return res.payload, nil
	}

	berr := backend.Classify(ctx, attemptCtx, b.ID(), res.err)
	if berr.Recordable() {
		o.health.RecordOutcome(b.ID(), false, latency)
	} else if cb := o.breakers.Get(b.ID()); cb != nil {
		cb.Release()
	}

	o.logger.Warn("Backend attempt failed",
		slog.String("backend", b.ID()),
		slog.String("kind", berr.Kind.String()),
		slog.Duration("latency", latency),
		slog.String("error", res.err.Error()))
	return nil, berr
}
