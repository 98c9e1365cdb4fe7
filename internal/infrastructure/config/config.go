package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// EnvironmentLocal marks a developer workstation run.
const EnvironmentLocal = "LOCAL"

// Config holds all application configuration.
type Config struct {
	Project   ProjectConfig
	Server    ServerConfig
	Logging   LogConfig
	Tracing   TracingConfig
	Breaker   BreakerConfig
	CORS      CORSConfig
	RateLimit RateLimitConfig
}

// ProjectConfig holds service identity settings.
type ProjectConfig struct {
	Name        string `envconfig:"PROJECT_NAME" default:"Delta T API"`
	Environment string `envconfig:"ENVIRONMENT" default:"PRODUCTION"`
	APIV1Prefix string `envconfig:"API_V1_STR" default:"/api/v1"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOGLEVEL" default:"warning"`
	Format      string `envconfig:"LOG_FORMAT" default:"logfmt"`
	Name        string `envconfig:"LOG_NAME" default:"coreservice"`
	Output      string `envconfig:"LOG_OUTPUT" default:"stderr"`
	AccessLevel string `envconfig:"ACCESS_LOG_LEVEL" default:"error"`
}

// TracingConfig holds span export configuration.
type TracingConfig struct {
	ServiceName   string        `envconfig:"OTEL_SERVICE_NAME" default:"deltat_core"`
	Host          string        `envconfig:"OTEL_HOST" default:"otel-collector"`
	Port          string        `envconfig:"OTEL_PORT" default:"4317"`
	Exporter      string        `envconfig:"OTEL_EXPORTER" default:"otlp"`
	ZipkinURL     string        `envconfig:"OTEL_ZIPKIN_URL" default:"http://zipkin:9411/api/v2/spans"`
	Propagate     bool          `envconfig:"OTEL_PROPAGATE" default:"true"`
	BatchTimeout  time.Duration `envconfig:"OTEL_BATCH_TIMEOUT" default:"5s"`
	BatchSize     int           `envconfig:"OTEL_BATCH_SIZE" default:"512"`
	QueueSize     int           `envconfig:"OTEL_QUEUE_SIZE" default:"2048"`
	ExportTimeout time.Duration `envconfig:"OTEL_EXPORT_TIMEOUT" default:"10s"`
}

// BreakerConfig holds the exporter circuit breaker thresholds.
type BreakerConfig struct {
	MaxFailures uint32        `envconfig:"EXPORT_BREAKER_FAILURES" default:"5"`
	Timeout     time.Duration `envconfig:"EXPORT_BREAKER_TIMEOUT" default:"30s"`
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	Enabled bool     `envconfig:"CORS_ENABLED" default:"true"`
	Origins []string `envconfig:"CORS_ORIGINS" default:"*"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:        "Delta T API",
			Environment: "PRODUCTION",
			APIV1Prefix: "/api/v1",
		},
		Server: ServerConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LogConfig{
			Level:       "warning",
			Format:      "logfmt",
			Name:        "coreservice",
			Output:      "stderr",
			AccessLevel: "error",
		},
		Tracing: TracingConfig{
			ServiceName:   "deltat_core",
			Host:          "otel-collector",
			Port:          "4317",
			Exporter:      "otlp",
			ZipkinURL:     "http://zipkin:9411/api/v2/spans",
			Propagate:     true,
			BatchTimeout:  5 * time.Second,
			BatchSize:     512,
			QueueSize:     2048,
			ExportTimeout: 10 * time.Second,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		CORS: CORSConfig{
			Enabled: true,
			Origins: []string{"*"},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           false,
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var err error
	if _, perr := strconv.ParseUint(c.Server.Port, 10, 16); perr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid PORT %q: %w", c.Server.Port, perr))
	}
	if _, perr := strconv.ParseUint(c.Tracing.Port, 10, 16); perr != nil {
		err = multierr.Append(err, fmt.Errorf("invalid OTEL_PORT %q: %w", c.Tracing.Port, perr))
	}
	if !strings.HasPrefix(c.Project.APIV1Prefix, "/") {
		err = multierr.Append(err, fmt.Errorf("API_V1_STR %q must start with /", c.Project.APIV1Prefix))
	}
	if c.Tracing.BatchSize <= 0 || c.Tracing.QueueSize < c.Tracing.BatchSize {
		err = multierr.Append(err, fmt.Errorf("OTEL_BATCH_SIZE (%d) must be positive and not exceed OTEL_QUEUE_SIZE (%d)",
			c.Tracing.BatchSize, c.Tracing.QueueSize))
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		err = multierr.Append(err, fmt.Errorf("RATE_LIMIT_RPS must be positive, got %d", c.RateLimit.RequestsPerSecond))
	}
	return err
}

// IsLocal reports whether the service runs in the LOCAL environment.
func (c *Config) IsLocal() bool {
	return strings.EqualFold(c.Project.Environment, EnvironmentLocal)
}

// Addr returns the HTTP bind address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

// Endpoint returns the collector host:port, without a scheme.
func (t TracingConfig) Endpoint() string {
	return net.JoinHostPort(t.Host, t.Port)
}
