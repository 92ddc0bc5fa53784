package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
)

// Config bounds the per-backend statistics window.
type Config struct {
	WindowSize       int
	Window           time.Duration
	LatencyReference time.Duration
}

func DefaultConfig() Config {
	return Config{
		WindowSize:       50,
		Window:           60 * time.Second,
		LatencyReference: time.Second,
	}
}

// OutcomeFunc observes every recorded outcome.
type OutcomeFunc func(backendID string, success bool, latency time.Duration)

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func WithOutcomeFunc(fn OutcomeFunc) Option {
	return func(m *Monitor) {
		m.onOutcome = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor keeps one Stats per backend registered in the breaker registry
// and drives each backend's breaker from recorded outcomes.
type Monitor struct {
	stats     map[string]*Stats
	breakers  *circuitbreaker.Registry
	reference time.Duration
	now       func() time.Time
	onOutcome OutcomeFunc
	logger    *slog.Logger
}

func NewMonitor(cfg Config, breakers *circuitbreaker.Registry, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.LatencyReference <= 0 {
		cfg.LatencyReference = def.LatencyReference
	}

	m := &Monitor{
		stats:     make(map[string]*Stats),
		breakers:  breakers,
		reference: cfg.LatencyReference,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, id := range breakers.IDs() {
		m.stats[id] = newStats(cfg.WindowSize, cfg.Window)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RecordOutcome is called once per completed backend attempt. A timeout
// is a failure. Unknown backends are ignored.
func (m *Monitor) RecordOutcome(backendID string, success bool, latency time.Duration) {
	stats, ok := m.stats[backendID]
	if !ok {
		m.logger.Warn("Outcome for unknown backend", slog.String("backend", backendID))
		return
	}

	stats.record(m.now(), success, latency)
	if cb := m.breakers.Get(backendID); cb != nil {
		if success {
			cb.RecordSuccess()
		} else {
			cb.RecordFailure()
		}
	}

	if m.onOutcome != nil {
		m.onOutcome(backendID, success, latency)
	}
}

// Score rates a backend in (0, 1]; higher is better. Backends without
// recent samples score 1 so they get traffic and can prove themselves.
func (m *Monitor) Score(backendID string) float64 {
	snap, ok := m.Snapshot(backendID)
	if !ok {
		return 0
	}
	return snap.Score
}

func (m *Monitor) Snapshot(backendID string) (Snapshot, bool) {
	stats, ok := m.stats[backendID]
	if !ok {
		return Snapshot{}, false
	}
	return stats.snapshot(m.now(), m.reference), true
}

func (m *Monitor) Snapshots() map[string]Snapshot {
	out := make(map[string]Snapshot, len(m.stats))
	for id, stats := range m.stats {
		out[id] = stats.snapshot(m.now(), m.reference)
	}
	return out
}

// Breakers exposes the registry the monitor drives.
func (m *Monitor) Breakers() *circuitbreaker.Registry {
	return m.breakers
}

// Run periodically reports backend health until ctx is done. Polling the
// breakers also surfaces OPEN to HALF_OPEN transitions on idle backends.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health reporting stopped")
			return

		case <-ticker.C:
			for _, id := range m.breakers.IDs() {
				snap, _ := m.Snapshot(id)
				state := m.breakers.Get(id).State()

				level := slog.LevelDebug
				if state != circuitbreaker.StateClosed {
					level = slog.LevelWarn
				}
				m.logger.Log(ctx, level, "Backend health",
					slog.String("backend", id),
					slog.String("state", state.String()),
					slog.Float64("score", snap.Score),
					slog.Float64("failure_rate", snap.FailureRate),
					slog.Duration("latency", snap.P95))
			}
		}
	}
}
