package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/shopcraft/selection/pkg/config"
)

// Config holds all configuration for the selection service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SELECTION_HTTP_PORT" envDefault:"8010"`

	// Remote catalog/pricing service
	CatalogBaseURL    string        `env:"CATALOG_BASE_URL" envDefault:"http://localhost:5000/api"`
	CatalogTimeout    time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
	CatalogMaxRetries int           `env:"CATALOG_MAX_RETRIES" envDefault:"2"`

	// Circuit breaker for the catalog client
	BreakerTimeout      time.Duration `env:"CATALOG_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerFailureRatio float64       `env:"CATALOG_BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerMinRequests  uint32        `env:"CATALOG_BREAKER_MIN_REQUESTS" envDefault:"5"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Session TTL (default: 24 hours)
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Product snapshot cache TTL
	ProductCacheTTL time.Duration `env:"PRODUCT_CACHE_TTL" envDefault:"30m"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0"`

	// CORS allowed origins for the product page
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Pprof debug endpoint IP allowlist (empty disables pprof)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load selection config: %w", err)
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
	if !strings.HasPrefix(c.CatalogBaseURL, "http://") && !strings.HasPrefix(c.CatalogBaseURL, "https://") {
		return fmt.Errorf("invalid catalog base URL: %q", c.CatalogBaseURL)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("invalid breaker failure ratio: %f", c.BreakerFailureRatio)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid session TTL: %s", c.SessionTTL)
	}
	return nil
}
