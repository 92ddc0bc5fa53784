package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/angeloszaimis/ai-orchestrator/config"
	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
	"github.com/angeloszaimis/ai-orchestrator/internal/cache"
	"github.com/angeloszaimis/ai-orchestrator/internal/circuitbreaker"
	"github.com/angeloszaimis/ai-orchestrator/internal/handler"
	"github.com/angeloszaimis/ai-orchestrator/internal/healthcheck"
	"github.com/angeloszaimis/ai-orchestrator/internal/metrics"
	"github.com/angeloszaimis/ai-orchestrator/internal/orchestrator"
	"github.com/angeloszaimis/ai-orchestrator/internal/selector"
	"github.com/angeloszaimis/ai-orchestrator/internal/storage"
)

// app holds the wired gateway components for one process.
type app struct {
	cfg *config.Config
	log *slog.Logger

	store        *cache.Store
	breakers     *circuitbreaker.Registry
	monitor      *healthcheck.Monitor
	collector    *metrics.Collector
	prom         *metrics.Prometheus
	orchestrator *orchestrator.Orchestrator
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	backends, err := initializeBackends(cfg, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:       cfg,
		log:       log,
		collector: metrics.NewCollector(cfg.Metrics.BufferSize, log),
		prom:      metrics.NewPrometheus(cfg.Metrics.Namespace),
	}
	observer := metrics.Fanout{a.collector, a.prom}

	a.store, err = openCache(ctx, cfg, log, observer.OnCacheEvent)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(backends))
	for _, b := range backends {
		ids = append(ids, b.ID())
	}
	a.breakers, err = circuitbreaker.NewRegistry(breakerConfig(cfg), ids,
		circuitbreaker.WithTransitionFunc(func(id string, from, to circuitbreaker.State) {
			log.Warn("Circuit breaker transition",
				slog.String("backend", id),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			observer.OnCircuitTransition(id, from, to)
		}))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.monitor = healthcheck.NewMonitor(healthConfig(cfg), a.breakers,
		healthcheck.WithOutcomeFunc(observer.OnOutcome),
		healthcheck.WithLogger(log))

	sel := selector.New(backends, a.monitor, selector.BreakerGate{Registry: a.breakers})

	a.orchestrator = orchestrator.New(orchestratorConfig(cfg), a.store, sel, a.monitor, a.breakers,
		orchestrator.WithLogger(log),
		orchestrator.WithResponseFunc(observer.OnResponse))

	return a, nil
}

// start launches the background loops. They stop when ctx ends.
func (a *app) start(ctx context.Context) {
	a.collector.Start(ctx)
	go a.monitor.Run(ctx, a.cfg.Health.ReportInterval)
}

func (a *app) router() *http.ServeMux {
	return setupRouter(routes{
		generate: handler.NewGenerateHandler(a.log, a.orchestrator),
		health:   handler.Health(a.breakers),
		stats:    handler.Stats(a.collector, a.monitor, a.store),
		metrics:  a.prom.Handler(),
	})
}

func (a *app) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// initializeBackends builds an HTTP adapter per configured backend.
func initializeBackends(cfg *config.Config, log *slog.Logger) ([]*backend.Backend, error) {
	backends := make([]*backend.Backend, 0, len(cfg.Backends))

	for _, bc := range cfg.Backends {
		u, err := url.Parse(bc.URL)
		if err != nil {
			log.Error("Failed to parse URL",
				slog.String("backend", bc.ID),
				slog.String("url", bc.URL),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("backend %q: %w", bc.ID, err)
		}

		capabilities := make([]backend.Capability, 0, len(bc.Capabilities))
		for _, c := range bc.Capabilities {
			capabilities = append(capabilities, backend.Capability(c))
		}

		adapter := backend.NewHTTPAdapter(u,
			backend.WithHeaders(bc.Headers),
			backend.WithResultPath(bc.ResultPath))
		backends = append(backends, backend.New(
			backend.NewDescriptor(bc.ID, capabilities, bc.Priority, bc.CostWeight),
			adapter,
		))
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}

	return backends, nil
}

func openCache(ctx context.Context, cfg *config.Config, log *slog.Logger, onEvent func(cache.EventKind, cache.Tier)) (*cache.Store, error) {
	var persistence storage.Persistence
	if cfg.Cache.DiskMaxBytes > 0 {
		p, err := storage.Open(ctx, storage.Config{
			Driver:      cfg.Cache.Disk.Driver,
			Path:        cfg.Cache.Disk.Path,
			RedisURL:    cfg.Cache.Disk.RedisURL,
			RedisPrefix: cfg.Cache.Disk.RedisPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("open cache storage: %w", err)
		}
		persistence = p
	}

	store, err := cache.New(ctx, cache.Options{
		MemoryMaxBytes: cfg.Cache.MemoryMaxBytes,
		DiskMaxBytes:   cfg.Cache.DiskMaxBytes,
		Shards:         cfg.Cache.Shards,
		Persistence:    persistence,
		Logger:         log,
		OnEvent:        onEvent,
	})
	if err != nil {
		if persistence != nil {
			_ = persistence.Close()
		}
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return store, nil
}

func breakerConfig(cfg *config.Config) circuitbreaker.Config {
	return circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Window:           cfg.Breaker.Window,
		Cooldown:         cfg.Breaker.Cooldown,
		MaxCooldown:      cfg.Breaker.MaxCooldown,
	}
}

func healthConfig(cfg *config.Config) healthcheck.Config {
	return healthcheck.Config{
		WindowSize:       cfg.Health.WindowSize,
		Window:           cfg.Health.Window,
		LatencyReference: cfg.Health.LatencyReference,
	}
}

func orchestratorConfig(cfg *config.Config) orchestrator.Config {
	fallbacks := make(map[backend.Capability]string, len(cfg.Fallbacks))
	for capability, payload := range cfg.Fallbacks {
		fallbacks[backend.Capability(capability)] = payload
	}

	return orchestrator.Config{
		MaxBackends:     cfg.Orchestrator.MaxBackends,
		AttemptTimeout:  cfg.Orchestrator.AttemptTimeout,
		DefaultDeadline: cfg.Orchestrator.DefaultDeadline,
		FallbackGrace:   cfg.Orchestrator.FallbackGrace,
		DefaultTTL:      cfg.Cache.DefaultTTL,
		TTLs:            cfg.Cache.TTLs,
		Fallbacks:       fallbacks,
	}
}
