package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/angeloszaimis/ai-orchestrator/internal/storage"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address" json:"address"`
	Environment string `mapstructure:"environment" json:"environment"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level" json:"level"`
	AddSource bool   `mapstructure:"add_source" json:"add_source"`
}

type DiskConfig struct {
	Driver      string `mapstructure:"driver" json:"driver"`
	Path        string `mapstructure:"path" json:"path"`
	RedisURL    string `mapstructure:"redis_url" json:"redis_url"`
	RedisPrefix string `mapstructure:"redis_prefix" json:"redis_prefix"`
}

type CacheConfig struct {
	MemoryMaxBytes int64                    `mapstructure:"memory_max_bytes" json:"memory_max_bytes"`
	DiskMaxBytes   int64                    `mapstructure:"disk_max_bytes" json:"disk_max_bytes"`
	Shards         int                      `mapstructure:"shards" json:"shards"`
	Disk           DiskConfig               `mapstructure:"disk" json:"disk"`
	TTLs           map[string]time.Duration `mapstructure:"ttls" json:"ttls"`
	DefaultTTL     time.Duration            `mapstructure:"default_ttl" json:"default_ttl"`
}

type HealthConfig struct {
	WindowSize       int           `mapstructure:"window_size" json:"window_size"`
	Window           time.Duration `mapstructure:"window" json:"window"`
	LatencyReference time.Duration `mapstructure:"latency_reference" json:"latency_reference"`
	ReportInterval   time.Duration `mapstructure:"report_interval" json:"report_interval"`
}

type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" json:"failure_threshold"`
	Window           time.Duration `mapstructure:"window" json:"window"`
	Cooldown         time.Duration `mapstructure:"cooldown" json:"cooldown"`
	MaxCooldown      time.Duration `mapstructure:"max_cooldown" json:"max_cooldown"`
}

type OrchestratorConfig struct {
	MaxBackends     int           `mapstructure:"max_backends" json:"max_backends"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`
	DefaultDeadline time.Duration `mapstructure:"default_deadline" json:"default_deadline"`
	FallbackGrace   time.Duration `mapstructure:"fallback_grace" json:"fallback_grace"`
}

type BackendConfig struct {
	ID           string            `mapstructure:"id" json:"id"`
	URL          string            `mapstructure:"url" json:"url"`
	Capabilities []string          `mapstructure:"capabilities" json:"capabilities"`
	Priority     int               `mapstructure:"priority" json:"priority"`
	CostWeight   float64           `mapstructure:"cost_weight" json:"cost_weight"`
	ResultPath   string            `mapstructure:"result_path" json:"result_path"`
	Headers      map[string]string `mapstructure:"headers" json:"headers"`
}

type MetricsConfig struct {
	Namespace  string `mapstructure:"namespace" json:"namespace"`
	BufferSize int    `mapstructure:"buffer_size" json:"buffer_size"`
}

type Config struct {
	Server       ServerConfig       `mapstructure:"server" json:"server"`
	Logging      LoggingConfig      `mapstructure:"logging" json:"logging"`
	Cache        CacheConfig        `mapstructure:"cache" json:"cache"`
	Health       HealthConfig       `mapstructure:"health" json:"health"`
	Breaker      BreakerConfig      `mapstructure:"breaker" json:"breaker"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" json:"orchestrator"`
	Backends     []BackendConfig    `mapstructure:"backends" json:"backends"`
	Fallbacks    map[string]string  `mapstructure:"fallbacks" json:"fallbacks"`
	Metrics      MetricsConfig      `mapstructure:"metrics" json:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", LogLevelInfo)
	v.SetDefault("logging.add_source", false)

	v.SetDefault("cache.memory_max_bytes", 64<<20)
	v.SetDefault("cache.disk_max_bytes", 512<<20)
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.disk.driver", storage.DriverSQLite)
	v.SetDefault("cache.disk.path", ".cache/orchestrator.db")
	v.SetDefault("cache.disk.redis_url", "")
	v.SetDefault("cache.disk.redis_prefix", "orchestrator:cache:")
	v.SetDefault("cache.ttls", map[string]string{
		"conversation": "10m",
		"story":        "168h",
	})
	v.SetDefault("cache.default_ttl", "1h")

	v.SetDefault("health.window_size", 50)
	v.SetDefault("health.window", "60s")
	v.SetDefault("health.latency_reference", "1s")
	v.SetDefault("health.report_interval", "30s")

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.window", "60s")
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.max_cooldown", "5m")

	v.SetDefault("orchestrator.max_backends", 3)
	v.SetDefault("orchestrator.attempt_timeout", "10s")
	v.SetDefault("orchestrator.default_deadline", "20s")
	v.SetDefault("orchestrator.fallback_grace", "250ms")

	v.SetDefault("metrics.namespace", "orchestrator")
	v.SetDefault("metrics.buffer_size", 1000)
}

// Load reads configuration from path, or from config.yaml in ./config or
// the working directory when path is empty. A .env file is loaded into the
// environment first; environment variables override file values.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, fmt.Errorf("read config: %w", err)
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value any) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value any) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Cache, validation.By(validateCache)),
		validation.Field(&c.Health,
			validation.By(func(value any) error {
				hc, ok := value.(HealthConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.WindowSize, validation.Required, validation.Min(1)),
					validation.Field(&hc.Window, validation.Required, validation.Min(time.Second)),
					validation.Field(&hc.LatencyReference, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&hc.ReportInterval, validation.Required, validation.Min(time.Second)),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.By(func(value any) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&bc.Window, validation.Required, validation.Min(time.Second)),
					validation.Field(&bc.Cooldown, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&bc.MaxCooldown, validation.Required, validation.Min(bc.Cooldown)),
				)
			}),
		),
		validation.Field(&c.Orchestrator,
			validation.By(func(value any) error {
				oc, ok := value.(OrchestratorConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an OrchestratorConfig")
				}
				return validation.ValidateStruct(&oc,
					validation.Field(&oc.MaxBackends, validation.Required, validation.Min(1)),
					validation.Field(&oc.AttemptTimeout, validation.Required, validation.Min(time.Millisecond)),
					validation.Field(&oc.DefaultDeadline, validation.Required, validation.Min(oc.AttemptTimeout)),
					validation.Field(&oc.FallbackGrace, validation.Required, validation.Min(time.Millisecond)),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
			validation.By(uniqueBackendIDs),
		),
		validation.Field(&c.Metrics,
			validation.By(func(value any) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.Namespace, validation.Required, validation.Match(metricNameRe)),
					validation.Field(&mc.BufferSize, validation.Required, validation.Min(1)),
				)
			}),
		),
	)
}

func validateCache(value any) error {
	cc, ok := value.(CacheConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a CacheConfig")
	}
	return validation.ValidateStruct(&cc,
		validation.Field(&cc.MemoryMaxBytes, validation.Required, validation.Min(int64(1024))),
		validation.Field(&cc.DiskMaxBytes, validation.Min(int64(0))),
		validation.Field(&cc.Shards, validation.Required, validation.Min(1), validation.Max(1024)),
		validation.Field(&cc.DefaultTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&cc.TTLs, validation.Each(validation.Min(time.Second))),
		validation.Field(&cc.Disk, validation.By(func(value any) error {
			dc, ok := value.(DiskConfig)
			if !ok {
				return validation.NewError("validation_invalid_type", "must be a DiskConfig")
			}
			return validation.ValidateStruct(&dc,
				validation.Field(&dc.Driver,
					validation.Required,
					validation.In(storage.DriverSQLite, storage.DriverRedis, storage.DriverMemory),
				),
				validation.Field(&dc.Path,
					validation.When(dc.Driver == storage.DriverSQLite, validation.Required),
				),
				validation.Field(&dc.RedisURL,
					validation.When(dc.Driver == storage.DriverRedis, validation.Required, is.URL),
				),
			)
		})),
	)
}

func validateHostPort(value any) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateServerURL(value any) error {
	serverURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if serverURL == "" {
		return validation.NewError("validation_empty_url", "server URL cannot be empty")
	}

	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}

func validateBackendConfig(value any) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	return validation.ValidateStruct(&backend,
		validation.Field(&backend.ID, validation.Required, validation.Match(backendIDRe)),
		validation.Field(&backend.URL, validation.By(validateServerURL)),
		validation.Field(&backend.Capabilities, validation.Required, validation.Each(validation.Required)),
		validation.Field(&backend.Priority, validation.Min(0)),
		validation.Field(&backend.CostWeight, validation.Min(0.0)),
	)
}

func uniqueBackendIDs(value any) error {
	backends, ok := value.([]BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a list of backends")
	}

	seen := make(map[string]bool, len(backends))
	for _, b := range backends {
		if seen[b.ID] {
			return validation.NewError("validation_duplicate_id", fmt.Sprintf("duplicate backend id %q", b.ID))
		}
		seen[b.ID] = true
	}
	return nil
}
