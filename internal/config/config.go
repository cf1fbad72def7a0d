package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ecobazaar/storefront/internal/store"
	pkgconfig "github.com/ecobazaar/storefront/pkg/config"
	"github.com/ecobazaar/storefront/pkg/database"
	"github.com/ecobazaar/storefront/pkg/middleware"
	"github.com/ecobazaar/storefront/pkg/tracing"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the storefront service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"STOREFRONT_HTTP_PORT" envDefault:"8010"`

	// Durable key-value storage
	StorageBackend   string `env:"STORAGE_BACKEND" envDefault:"redis"`
	StorageKeyPrefix string `env:"STORAGE_KEY_PREFIX" envDefault:"ecobazaar:"`
	StorageTTLHours  int    `env:"STORAGE_TTL_HOURS" envDefault:"0"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// PostgreSQL
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"ecobazaar"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"ecobazaar_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"ecobazaar"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	// Queries slower than this are logged at warn; 0 disables.
	SlowQueryThresholdMs int `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"0"`

	// Recommendation/chat service
	RecommenderURL        string        `env:"RECOMMENDER_URL" envDefault:"http://127.0.0.1:5000"`
	RecommenderTimeout    time.Duration `env:"RECOMMENDER_TIMEOUT" envDefault:"5s"`
	RecommenderMaxRetries int           `env:"RECOMMENDER_MAX_RETRIES" envDefault:"0"`

	// Kafka; empty disables order events
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Sessions idle this long are dropped from memory; 0 keeps them.
	SessionIdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SessionMax         int           `env:"SESSION_MAX" envDefault:"10000"`

	// Per-client token bucket on /api/v1; RATE_LIMIT_RPS=0 disables it.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// Elasticsearch product search; empty keeps search in process
	ElasticsearchURL   string `env:"ELASTICSEARCH_URL" envDefault:""`
	ElasticsearchIndex string `env:"ELASTICSEARCH_INDEX" envDefault:"ecobazaar_products"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("STOREFRONT_HTTP_PORT: invalid HTTP port: %d", c.HTTPPort))
	}
	switch c.StorageBackend {
	case BackendMemory, BackendRedis, BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND: must be one of memory, redis, postgres, got %q", c.StorageBackend))
	}
	if c.StorageTTLHours < 0 {
		errs = append(errs, fmt.Errorf("STORAGE_TTL_HOURS: must not be negative, got %d", c.StorageTTLHours))
	}
	if c.SlowQueryThresholdMs < 0 {
		errs = append(errs, fmt.Errorf("SLOW_QUERY_THRESHOLD_MS: must not be negative, got %d", c.SlowQueryThresholdMs))
	}
	if c.RecommenderURL == "" {
		errs = append(errs, errors.New("RECOMMENDER_URL: is required"))
	}
	if c.RecommenderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RECOMMENDER_TIMEOUT: must be positive, got %s", c.RecommenderTimeout))
	}
	if c.RecommenderMaxRetries < 0 {
		errs = append(errs, fmt.Errorf("RECOMMENDER_MAX_RETRIES: must not be negative, got %d", c.RecommenderMaxRetries))
	}
	if c.SessionIdleTimeout < 0 || (c.SessionIdleTimeout > 0 && c.SessionIdleTimeout < time.Minute) {
		errs = append(errs, fmt.Errorf("SESSION_IDLE_TIMEOUT: must be 0 or at least 1m, got %s", c.SessionIdleTimeout))
	}
	if c.SessionMax < 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX: must not be negative, got %d", c.SessionMax))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: must not be negative, got %v", c.RateLimitRPS))
	}
	if c.RateLimitBurst < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST: must not be negative, got %d", c.RateLimitBurst))
	}
	if c.ElasticsearchURL != "" && c.ElasticsearchIndex == "" {
		errs = append(errs, errors.New("ELASTICSEARCH_INDEX: is required with ELASTICSEARCH_URL"))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate))
	}
	return errors.Join(errs...)
}

// StorageTTL is the Redis key expiry; zero means keys never expire.
func (c *Config) StorageTTL() time.Duration {
	return time.Duration(c.StorageTTLHours) * time.Hour
}

// EventsEnabled reports whether order events should be published.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// SearchEnabled reports whether product search goes to Elasticsearch.
func (c *Config) SearchEnabled() bool {
	return c.ElasticsearchURL != ""
}

// Sessions returns the bounds on sessions kept in memory.
func (c *Config) Sessions() store.Limits {
	return store.Limits{IdleTimeout: c.SessionIdleTimeout, MaxSessions: c.SessionMax}
}

// RateLimit returns the /api/v1 rate limit configuration.
func (c *Config) RateLimit() middleware.RateLimitConfig {
	return middleware.RateLimitConfig{RPS: c.RateLimitRPS, Burst: c.RateLimitBurst}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Addr = c.RedisAddr
	rc.Password = c.RedisPass
	rc.DB = c.RedisDB
	return rc
}

// Postgres returns the PostgreSQL pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	pc := database.DefaultPostgresConfig()
	pc.Host = c.PostgresHost
	pc.Port = c.PostgresPort
	pc.User = c.PostgresUser
	pc.Password = c.PostgresPassword
	pc.DBName = c.PostgresDB
	pc.SSLMode = c.PostgresSSLMode
	return pc
}

// Tracing returns the OpenTelemetry configuration for serviceName.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.Enabled = c.OTELEnabled
	tc.OTLPEndpoint = c.OTELEndpoint
	tc.SampleRate = c.OTELSampleRate
	return tc
}
