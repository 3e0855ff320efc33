package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/authapi/pkg/observability"
	"github.com/platinummonkey/authapi/pkg/rbac"
	"github.com/platinummonkey/authapi/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	// Permission cache configuration
	Cache rbac.CacheConfig `yaml:"cache"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	// Audit trail configuration
	Audit AuditConfig `yaml:"audit"`

	// Background jobs
	Jobs JobsConfig `yaml:"jobs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// HealthAddr returns the health and metrics listen address
func (s ServerConfig) HealthAddr() string {
	return s.Host + ":" + s.HealthPort
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTel observability.OTelConfig `yaml:"otel"`
}

// Level returns the parsed log level. Validate rejects unknown names, so this
// only falls back to info on an unvalidated config.
func (o ObservabilityConfig) Level() observability.LogLevel {
	level, err := observability.ParseLogLevel(o.LogLevel)
	if err != nil {
		return observability.InfoLevel
	}
	return level
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`
	// Path of the JSON lines file; empty or "-" writes to stdout
	Path string `yaml:"path"`
}

// JobsConfig holds background job schedules in cron syntax
type JobsConfig struct {
	GaugeSchedule string `yaml:"gauge_schedule"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: storage.DefaultConfig(),
		Cache:   rbac.DefaultCacheConfig(),
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "authapi",
				ServiceVersion: "1.0.0",
				Insecure:       true,
				SampleRatio:    1,
			},
		},
		Audit: AuditConfig{Enabled: true},
		Jobs:  JobsConfig{GaugeSchedule: "@every 1m"},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// AUTHAPI_CONFIG_FILE when set, and AUTHAPI_* environment variables, in that
// order of precedence from lowest to highest.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("AUTHAPI_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadServerConfig()
	cfg.loadStorageConfig()
	cfg.loadCacheConfig()
	cfg.loadObservabilityConfig()
	cfg.loadAuditConfig()
	cfg.Jobs.GaugeSchedule = getEnv("AUTHAPI_GAUGE_SCHEDULE", cfg.Jobs.GaugeSchedule)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile overlays the YAML document at path onto c. Keys missing from the
// file keep their current value.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadServerConfig() {
	s := &c.Server
	s.Host = getEnv("AUTHAPI_HOST", s.Host)
	s.Port = getEnv("AUTHAPI_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("AUTHAPI_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("AUTHAPI_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("AUTHAPI_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("AUTHAPI_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("AUTHAPI_HEALTH_PORT", s.HealthPort)
}

func (c *Config) loadStorageConfig() {
	s := &c.Storage
	s.Type = getEnv("AUTHAPI_STORAGE_TYPE", s.Type)

	// PostgreSQL config
	s.PostgresURL = getEnv("AUTHAPI_POSTGRES_URL", s.PostgresURL)
	if replicaURLs := getEnv("AUTHAPI_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		s.PostgresReplicaURLs = splitList(replicaURLs)
	}
	if maxConns := getEnvInt("AUTHAPI_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		s.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("AUTHAPI_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		s.PostgresMinConns = minConns
	}
	s.PostgresTimeout = getEnvDuration("AUTHAPI_POSTGRES_TIMEOUT", s.PostgresTimeout)
	s.AutoMigrate = getEnvBool("AUTHAPI_AUTO_MIGRATE", s.AutoMigrate)

	// SQLite config
	s.SQLitePath = getEnv("AUTHAPI_SQLITE_PATH", s.SQLitePath)
}

func (c *Config) loadCacheConfig() {
	if size := getEnvInt("AUTHAPI_CACHE_SIZE", 0); size > 0 {
		c.Cache.Size = size
	}
	c.Cache.TTL = getEnvDuration("AUTHAPI_CACHE_TTL", c.Cache.TTL)
	c.Cache.RedisURL = getEnv("AUTHAPI_REDIS_URL", c.Cache.RedisURL)
}

func (c *Config) loadObservabilityConfig() {
	o := &c.Observability
	o.LogLevel = getEnv("AUTHAPI_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("AUTHAPI_METRICS_ENABLED", o.MetricsEnabled)

	o.OTel.Enabled = getEnvBool("AUTHAPI_OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("AUTHAPI_OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("AUTHAPI_OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.ServiceVersion = getEnv("AUTHAPI_OTEL_SERVICE_VERSION", o.OTel.ServiceVersion)
	o.OTel.Insecure = getEnvBool("AUTHAPI_OTEL_INSECURE", o.OTel.Insecure)
	o.OTel.SampleRatio = getEnvFloat("AUTHAPI_OTEL_SAMPLE_RATIO", o.OTel.SampleRatio)
}

func (c *Config) loadAuditConfig() {
	c.Audit.Enabled = getEnvBool("AUTHAPI_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.Path = getEnv("AUTHAPI_AUDIT_PATH", c.Audit.Path)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, postgres, or sqlite)", c.Storage.Type)
	}

	// Validate cache config
	if c.Cache.Size <= 0 {
		return fmt.Errorf("cache size must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache TTL must be positive")
	}

	if _, err := observability.ParseLogLevel(c.Observability.LogLevel); err != nil {
		return err
	}

	// Validate OpenTelemetry config
	if otel := c.Observability.OTel; otel.Enabled {
		if otel.Endpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if otel.ServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if otel.SampleRatio < 0 || otel.SampleRatio > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1")
		}
	}

	if c.Jobs.GaugeSchedule != "" {
		if _, err := cron.ParseStandard(c.Jobs.GaugeSchedule); err != nil {
			return fmt.Errorf("invalid gauge schedule %q: %w", c.Jobs.GaugeSchedule, err)
		}
	}

	return nil
}

// splitList parses a comma-separated list, dropping blank entries
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
