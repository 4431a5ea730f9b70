package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/shopforge/promotion-service/pkg/config"
)

// Config holds all configuration for the promotion service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"PROMOTION_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"shopforge"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"shopforge_secret"`
	PostgresDB   string `env:"PROMOTION_DB_NAME" envDefault:"promotion_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Redis product cache. Empty host disables the cache.
	RedisHost        string `env:"REDIS_HOST" envDefault:""`
	RedisPort        int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB          int    `env:"REDIS_DB" envDefault:"0"`
	ProductCacheTTLS int    `env:"PRODUCT_CACHE_TTL_SECONDS" envDefault:"60"`

	// Background sweep loop
	SweepIntervalSecs int `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	ReconcileEvery    int `env:"RECONCILE_EVERY_N_SWEEPS" envDefault:"10"`

	// HTTP cache headers for the products listing
	ProductsCacheMaxAge int `env:"PRODUCTS_CACHE_MAX_AGE_SECONDS" envDefault:"30"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load promotion config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.SweepIntervalSecs <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be > 0, got %d", c.SweepIntervalSecs)
	}
	if c.ReconcileEvery <= 0 {
		return fmt.Errorf("RECONCILE_EVERY_N_SWEEPS must be > 0, got %d", c.ReconcileEvery)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// RedisEnabled reports whether the product cache is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// SweepInterval returns the sweep loop tick interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// ProductCacheTTL returns the Redis product cache TTL.
func (c *Config) ProductCacheTTL() time.Duration {
	return time.Duration(c.ProductCacheTTLS) * time.Second
}
