package orchestrator

import (
	"time"

	"github.com/angeloszaimis/ai-orchestrator/internal/backend"
)

type Config struct {
	// MaxBackends caps live attempts per request.
	MaxBackends     int
	AttemptTimeout  time.Duration
	DefaultDeadline time.Duration
	// FallbackGrace bounds the fallback stages once the request deadline
	// has already passed.
	FallbackGrace time.Duration

	DefaultTTL time.Duration
	TTLs       map[string]time.Duration

	Fallbacks map[backend.Capability]string
}

func DefaultConfig() Config {
	return Config{
		MaxBackends:     3,
		AttemptTimeout:  10 * time.Second,
		DefaultDeadline: 20 * time.Second,
		FallbackGrace:   250 * time.Millisecond,
		DefaultTTL:      time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBackends <= 0 {
		c.MaxBackends = d.MaxBackends
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.DefaultDeadline <= 0 {
		c.DefaultDeadline = d.DefaultDeadline
	}
	if c.FallbackGrace <= 0 {
		c.FallbackGrace = d.FallbackGrace
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = d.DefaultTTL
	}
	return c
}

// TTL resolves the cache lifetime of a content class.
func (c Config) TTL(contentClass string) time.Duration {
	if ttl, ok := c.TTLs[contentClass]; ok && ttl > 0 {
		return ttl
	}
	return c.DefaultTTL
}
