package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sodav-monitor/sodav/pkg/fingerprint"
	"github.com/sodav-monitor/sodav/pkg/identity"
	"github.com/sodav-monitor/sodav/pkg/middleware"
	"github.com/sodav-monitor/sodav/pkg/monitor"
	"github.com/sodav-monitor/sodav/pkg/observability"
	"github.com/sodav-monitor/sodav/pkg/report"
	"github.com/sodav-monitor/sodav/pkg/storage"
)

// FileEnv names the optional YAML file overlaid before environment variables.
const FileEnv = "SODAV_CONFIG_FILE"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       storage.Config      `yaml:"storage"`
	Identity      identity.Config     `yaml:"identity"`
	Providers     fingerprint.Config  `yaml:"providers"`
	Monitor       monitor.Config      `yaml:"monitor"`
	Reports       ReportsConfig       `yaml:"reports"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// ReportsConfig controls the daily airplay report job.
type ReportsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// RateLimitConfig holds one quota per caller class. Distributed switches
// from in-process buckets to Redis when a Redis URL is configured.
type RateLimitConfig struct {
	Enabled     bool                       `yaml:"enabled"`
	Distributed bool                       `yaml:"distributed"`
	Anonymous   middleware.RateLimitConfig `yaml:"anonymous"`
	User        middleware.RateLimitConfig `yaml:"user"`
	Key         middleware.RateLimitConfig `yaml:"key"`
}

// AuditConfig controls the authentication audit trail.
type AuditConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Retention time.Duration `yaml:"retention"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string                   `yaml:"log_level"`
	MetricsEnabled bool                     `yaml:"metrics_enabled"`
	OTel           observability.OTelConfig `yaml:"otel"`
}

// Level returns the parsed log level, info when unset.
func (c ObservabilityConfig) Level() observability.LogLevel {
	level, _ := observability.ParseLevel(c.LogLevel)
	return level
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    1 << 20,
			HealthPort:      "9090",
		},
		Storage:   storage.DefaultConfig(),
		Identity:  identity.Config{Mode: identity.ModeJWKS, Timeout: 10 * time.Second, CacheSize: 10000, CacheTTL: time.Minute},
		Providers: fingerprint.DefaultConfig(),
		Monitor:   monitor.DefaultConfig(),
		Reports:   ReportsConfig{Enabled: true, Schedule: report.DefaultSchedule},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Distributed: true,
			Anonymous:   *middleware.DefaultRateLimitConfig(),
			User:        *middleware.PerUserRateLimitConfig(),
			Key:         *middleware.PerKeyRateLimitConfig(),
		},
		Audit: AuditConfig{Enabled: true, Retention: 90 * 24 * time.Hour},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
			OTel: observability.OTelConfig{
				Endpoint:       "localhost:4317",
				ServiceName:    "sodav-monitor",
				ServiceVersion: "1.0.0",
				Insecure:       true,
				SampleRatio:    1,
			},
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// SODAV_CONFIG_FILE if any, and SODAV_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv(FileEnv))
}

// Load is LoadConfig with an explicit file path. An empty path skips the
// file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

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

// applyEnv overrides every field whose variable is set.
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("SODAV_HOST", s.Host)
	s.Port = getEnv("SODAV_PORT", s.Port)
	s.HealthPort = getEnv("SODAV_HEALTH_PORT", s.HealthPort)
	s.ReadTimeout = getEnvDuration("SODAV_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("SODAV_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("SODAV_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("SODAV_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.MaxBodyBytes = getEnvInt64("SODAV_MAX_BODY_BYTES", s.MaxBodyBytes)
	s.AllowedOrigins = getEnvList("SODAV_ALLOWED_ORIGINS", s.AllowedOrigins)

	st := &c.Storage
	st.PostgresURL = getEnv("SODAV_POSTGRES_URL", st.PostgresURL)
	st.PostgresReplicaURLs = getEnv("SODAV_POSTGRES_REPLICA_URLS", st.PostgresReplicaURLs)
	st.PostgresMaxConns = getEnvInt("SODAV_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("SODAV_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("SODAV_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.S3Endpoint = getEnv("SODAV_S3_ENDPOINT", st.S3Endpoint)
	st.S3Region = getEnv("SODAV_S3_REGION", st.S3Region)
	st.S3Bucket = getEnv("SODAV_S3_BUCKET", st.S3Bucket)
	st.S3AccessKey = getEnv("SODAV_S3_ACCESS_KEY", st.S3AccessKey)
	st.S3SecretKey = getEnv("SODAV_S3_SECRET_KEY", st.S3SecretKey)
	st.S3UsePathStyle = getEnvBool("SODAV_S3_USE_PATH_STYLE", st.S3UsePathStyle)
	st.RedisURL = getEnv("SODAV_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("SODAV_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("SODAV_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("SODAV_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("SODAV_REDIS_POOL_SIZE", st.RedisPoolSize)
	st.EventsChannel = getEnv("SODAV_EVENTS_CHANNEL", st.EventsChannel)
	st.SongCacheTTL = getEnvDuration("SODAV_SONG_CACHE_TTL", st.SongCacheTTL)

	id := &c.Identity
	id.Mode = getEnv("SODAV_IDENTITY_MODE", id.Mode)
	id.URL = getEnv("SODAV_IDENTITY_URL", id.URL)
	id.APIKey = getEnv("SODAV_IDENTITY_API_KEY", id.APIKey)
	id.JWKSURL = getEnv("SODAV_IDENTITY_JWKS_URL", id.JWKSURL)
	id.IssuerURL = getEnv("SODAV_IDENTITY_ISSUER", id.IssuerURL)
	id.Audience = getEnv("SODAV_IDENTITY_AUDIENCE", id.Audience)
	id.SigningAlgs = getEnvList("SODAV_IDENTITY_SIGNING_ALGS", id.SigningAlgs)
	id.Timeout = getEnvDuration("SODAV_IDENTITY_TIMEOUT", id.Timeout)
	id.CacheSize = getEnvInt("SODAV_IDENTITY_CACHE_SIZE", id.CacheSize)
	id.CacheTTL = getEnvDuration("SODAV_IDENTITY_CACHE_TTL", id.CacheTTL)

	p := &c.Providers
	p.AcoustIDURL = getEnv("SODAV_ACOUSTID_URL", p.AcoustIDURL)
	p.AcoustIDKey = getEnv("SODAV_ACOUSTID_KEY", p.AcoustIDKey)
	p.AudDURL = getEnv("SODAV_AUDD_URL", p.AudDURL)
	p.AudDToken = getEnv("SODAV_AUDD_TOKEN", p.AudDToken)
	p.Timeout = getEnvDuration("SODAV_PROVIDER_TIMEOUT", p.Timeout)

	m := &c.Monitor
	m.DedupWindow = getEnvDuration("SODAV_DEDUP_WINDOW", m.DedupWindow)
	m.DedupSize = getEnvInt("SODAV_DEDUP_SIZE", m.DedupSize)
	m.MinConfidence = getEnvFloat("SODAV_MIN_CONFIDENCE", m.MinConfidence)

	c.Reports.Enabled = getEnvBool("SODAV_REPORTS_ENABLED", c.Reports.Enabled)
	c.Reports.Schedule = getEnv("SODAV_REPORTS_SCHEDULE", c.Reports.Schedule)

	c.RateLimit.Enabled = getEnvBool("SODAV_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Distributed = getEnvBool("SODAV_RATE_LIMIT_DISTRIBUTED", c.RateLimit.Distributed)

	c.Audit.Enabled = getEnvBool("SODAV_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.Retention = getEnvDuration("SODAV_AUDIT_RETENTION", c.Audit.Retention)

	o := &c.Observability
	o.LogLevel = getEnv("SODAV_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("SODAV_METRICS_ENABLED", o.MetricsEnabled)
	o.OTel.Enabled = getEnvBool("SODAV_OTEL_ENABLED", o.OTel.Enabled)
	o.OTel.Endpoint = getEnv("SODAV_OTEL_ENDPOINT", o.OTel.Endpoint)
	o.OTel.ServiceName = getEnv("SODAV_OTEL_SERVICE_NAME", o.OTel.ServiceName)
	o.OTel.ServiceVersion = getEnv("SODAV_OTEL_SERVICE_VERSION", o.OTel.ServiceVersion)
	o.OTel.Insecure = getEnvBool("SODAV_OTEL_INSECURE", o.OTel.Insecure)
	o.OTel.SampleRatio = getEnvFloat("SODAV_OTEL_SAMPLE_RATIO", o.OTel.SampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}
	if c.Server.HealthPort == "" {
		return errors.New("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return errors.New("server port and health port must be different")
	}
	if err := validPort(c.Server.Port); err != nil {
		return fmt.Errorf("server port: %w", err)
	}
	if err := validPort(c.Server.HealthPort); err != nil {
		return fmt.Errorf("health port: %w", err)
	}

	if c.Storage.PostgresURL == "" {
		return errors.New("postgres URL is required")
	}
	if c.Reports.Enabled && c.Storage.S3Bucket == "" {
		return errors.New("S3 bucket is required when reports are enabled")
	}

	switch c.Identity.Mode {
	case identity.ModeJWKS, "":
		if c.Identity.JWKSURL == "" && c.Identity.IssuerURL == "" {
			return errors.New("identity JWKS URL or issuer is required in jwks mode")
		}
	case identity.ModeGoTrue:
		if c.Identity.URL == "" {
			return errors.New("identity URL is required in gotrue mode")
		}
	default:
		return fmt.Errorf("invalid identity mode: %s (must be jwks or gotrue)", c.Identity.Mode)
	}

	if c.Monitor.MinConfidence < 0 || c.Monitor.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be between 0 and 1, got %v", c.Monitor.MinConfidence)
	}

	if _, err := observability.ParseLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if c.Observability.OTel.Enabled {
		if c.Observability.OTel.Endpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTel.ServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func validPort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

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

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
