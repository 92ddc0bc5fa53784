package storage

import (
	"context"
	"errors"
	"fmt"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("storage: key not found")

// Persistence is a byte-oriented keyed store.
// Implementations must be safe for concurrent use.
type Persistence interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error

	// Scan calls fn for every stored pair. Returning an error from fn stops
	// the scan and is passed through.
	Scan(ctx context.Context, fn func(key string, value []byte) error) error

	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string
	Path        string
	RedisURL    string
	RedisPrefix string
}

// Open returns the Persistence for cfg.Driver.
func Open(ctx context.Context, cfg Config) (Persistence, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		return NewSQLite(ctx, cfg.Path)
	case DriverRedis:
		return NewRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
