// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every rpcguard component.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, limiter, storage, etc.)
// - Defaults that work out of the box for a single-node deployment
// - Validation catches misconfigurations before any background task starts
// - Every leaf can be overridden from the environment (RPCGUARD_* variables)
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
	StorageTypeRedis    = "redis"
)

// Upstream mode constants
const (
	UpstreamModeHTTP = "http"
	UpstreamModeEcho = "echo"
)

// DefaultBlacklistDuration is applied when a blacklist entry is added without
// an explicit duration.
const DefaultBlacklistDuration = time.Hour

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Limiter: token bucket, burst, tracking and header policy
// - Storage: where whitelist/blacklist records are persisted
// - Upstream: the RPC backend admitted calls are forwarded to
// - Security: admin API authentication
// - Logging, Metrics, Observability: operational concerns
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Limiter       LimiterConfig       `yaml:"limiter" json:"limiter"`             // Rate limiting policy
	Storage       StorageConfig       `yaml:"storage" json:"storage"`             // Access list persistence
	Upstream      UpstreamConfig      `yaml:"upstream" json:"upstream"`           // RPC backend
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Admin authentication
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port" env:"RPCGUARD_PORT"`
	Host         string        `yaml:"host" json:"host" env:"RPCGUARD_HOST"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"RPCGUARD_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"RPCGUARD_WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"RPCGUARD_IDLE_TIMEOUT"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled" env:"RPCGUARD_TLS_ENABLED"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file" env:"RPCGUARD_TLS_CERT_FILE"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file" env:"RPCGUARD_TLS_KEY_FILE"`
}

// LimiterConfig groups the four policy sections of the rate limiter. It is
// supplied once at construction and never changes afterwards.
type LimiterConfig struct {
	Bucket    BucketConfig   `yaml:"bucket" json:"bucket"`
	Burst     BurstConfig    `yaml:"burst" json:"burst"`
	Tracking  TrackingConfig `yaml:"tracking" json:"tracking"`
	Headers   HeaderConfig   `yaml:"headers" json:"headers"`
	Whitelist []string       `yaml:"whitelist" json:"whitelist" env:"RPCGUARD_WHITELIST"`
}

// BucketConfig is the steady-state token bucket: Capacity tokens, topped up by
// RefillRate tokens every RefillInterval.
type BucketConfig struct {
	Capacity       int           `yaml:"capacity" json:"capacity" env:"RPCGUARD_BUCKET_CAPACITY"`
	RefillRate     int           `yaml:"refill_rate" json:"refill_rate" env:"RPCGUARD_BUCKET_REFILL_RATE"`
	RefillInterval time.Duration `yaml:"refill_interval" json:"refill_interval" env:"RPCGUARD_BUCKET_REFILL_INTERVAL"`
}

// BurstConfig controls the secondary ceiling that opens once the normal
// capacity is spent, and the idle grace admission.
type BurstConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled" env:"RPCGUARD_BURST_ENABLED"`
	BurstCapacity     int           `yaml:"burst_capacity" json:"burst_capacity" env:"RPCGUARD_BURST_CAPACITY"`
	BurstRecoveryTime time.Duration `yaml:"burst_recovery_time" json:"burst_recovery_time" env:"RPCGUARD_BURST_RECOVERY_TIME"`
	GracePeriod       time.Duration `yaml:"grace_period" json:"grace_period" env:"RPCGUARD_GRACE_PERIOD"`
}

type TrackingConfig struct {
	TrackUsers      bool          `yaml:"track_users" json:"track_users" env:"RPCGUARD_TRACK_USERS"`
	TrackIPs        bool          `yaml:"track_ips" json:"track_ips" env:"RPCGUARD_TRACK_IPS"`
	UserTTL         time.Duration `yaml:"user_ttl" json:"user_ttl" env:"RPCGUARD_USER_TTL"`
	IPTTL           time.Duration `yaml:"ip_ttl" json:"ip_ttl" env:"RPCGUARD_IP_TTL"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"RPCGUARD_CLEANUP_INTERVAL"`
	MaxEvents       int           `yaml:"max_events" json:"max_events" env:"RPCGUARD_MAX_EVENTS"`
}

type HeaderConfig struct {
	Enabled           bool   `yaml:"enabled" json:"enabled" env:"RPCGUARD_HEADERS_ENABLED"`
	HeaderPrefix      string `yaml:"header_prefix" json:"header_prefix" env:"RPCGUARD_HEADER_PREFIX"`
	IncludeRetryAfter bool   `yaml:"include_retry_after" json:"include_retry_after" env:"RPCGUARD_HEADERS_RETRY_AFTER"`
	IncludePolicy     bool   `yaml:"include_policy" json:"include_policy" env:"RPCGUARD_HEADERS_POLICY"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type" env:"RPCGUARD_STORAGE_TYPE"`
	Path     string         `yaml:"path" json:"path" env:"RPCGUARD_STORAGE_PATH"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn" env:"RPCGUARD_DATABASE_DSN"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"RPCGUARD_DATABASE_MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"RPCGUARD_DATABASE_CONN_MAX_LIFETIME"`
	MigrationsTable string        `yaml:"migrations_table" json:"migrations_table" env:"RPCGUARD_DATABASE_MIGRATIONS_TABLE"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr" env:"RPCGUARD_REDIS_ADDR"`
	Password  string `yaml:"password" json:"password" env:"RPCGUARD_REDIS_PASSWORD"`
	DB        int    `yaml:"db" json:"db" env:"RPCGUARD_REDIS_DB"`
	PoolSize  int    `yaml:"pool_size" json:"pool_size" env:"RPCGUARD_REDIS_POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"RPCGUARD_REDIS_KEY_PREFIX"`
}

type UpstreamConfig struct {
	Mode    string            `yaml:"mode" json:"mode" env:"RPCGUARD_UPSTREAM_MODE"`
	URL     string            `yaml:"url" json:"url" env:"RPCGUARD_UPSTREAM_URL"`
	Timeout time.Duration     `yaml:"timeout" json:"timeout" env:"RPCGUARD_UPSTREAM_TIMEOUT"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

type SecurityConfig struct {
	EnableAuth bool   `yaml:"enable_auth" json:"enable_auth" env:"RPCGUARD_ENABLE_AUTH"`
	AdminToken string `yaml:"admin_token" json:"-" env:"RPCGUARD_ADMIN_TOKEN"`
	// AdminRequestsPerMinute throttles the admin API per client IP.
	AdminRequestsPerMinute int `yaml:"admin_requests_per_minute" json:"admin_requests_per_minute" env:"RPCGUARD_ADMIN_RPM"`
	AdminBurst             int `yaml:"admin_burst" json:"admin_burst" env:"RPCGUARD_ADMIN_BURST"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" env:"RPCGUARD_LOG_LEVEL"`
	Format   string `yaml:"format" json:"format" env:"RPCGUARD_LOG_FORMAT"`
	Output   string `yaml:"output" json:"output" env:"RPCGUARD_LOG_OUTPUT"`
	FilePath string `yaml:"file_path" json:"file_path" env:"RPCGUARD_LOG_FILE_PATH"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"RPCGUARD_METRICS_ENABLED"`
	Path    string `yaml:"path" json:"path" env:"RPCGUARD_METRICS_PATH"`
	Port    int    `yaml:"port" json:"port" env:"RPCGUARD_METRICS_PORT"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name" env:"RPCGUARD_SERVICE_NAME"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" env:"RPCGUARD_TRACING_ENABLED"`
	Exporter     string  `yaml:"exporter" json:"exporter" env:"RPCGUARD_TRACING_EXPORTER"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"RPCGUARD_OTLP_ENDPOINT"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate" env:"RPCGUARD_TRACING_SAMPLE_RATE"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - 100 tokens refilled at 10 per second: generous for interactive IDE traffic
// - Burst disabled: operators opt in to the wider ceiling
// - Users tracked before IPs; users are kept for an hour, IPs for 30 minutes
// - Cleanup every 5 minutes, keeping the 100 most recent events
// - Memory storage and echo upstream: runnable without external services
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Limiter: NewDefaultLimiterConfig(),
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/accesslist.json",
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				ConnMaxLifetime: 5 * time.Minute,
				MigrationsTable: "rpcguard_migrations",
			},
			Redis: RedisConfig{
				PoolSize:  10,
				KeyPrefix: "rpcguard",
			},
		},
		Upstream: UpstreamConfig{
			Mode:    UpstreamModeEcho,
			Headers: map[string]string{},
		},
		Security: SecurityConfig{
			EnableAuth:             false,
			AdminRequestsPerMinute: 120,
			AdminBurst:             20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "rpcguard",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

// NewDefaultLimiterConfig returns the limiter policy used when none is configured.
func NewDefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Bucket: BucketConfig{
			Capacity:       100,
			RefillRate:     10,
			RefillInterval: time.Second,
		},
		Burst: BurstConfig{
			Enabled:           false,
			BurstCapacity:     150,
			BurstRecoveryTime: time.Minute,
			GracePeriod:       0,
		},
		Tracking: TrackingConfig{
			TrackUsers:      true,
			TrackIPs:        true,
			UserTTL:         time.Hour,
			IPTTL:           30 * time.Minute,
			CleanupInterval: 5 * time.Minute,
			MaxEvents:       100,
		},
		Headers: HeaderConfig{
			Enabled:           true,
			HeaderPrefix:      "X-RateLimit",
			IncludeRetryAfter: true,
			IncludePolicy:     false,
		},
		Whitelist: []string{},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("invalid upstream config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

// Validate rejects policies the limiter cannot run with. A failure here is
// fatal at construction time.
func (lc *LimiterConfig) Validate() error {
	if lc.Bucket.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %d", lc.Bucket.Capacity)
	}
	if lc.Bucket.RefillRate <= 0 {
		return fmt.Errorf("refill rate must be positive, got %d", lc.Bucket.RefillRate)
	}
	if lc.Bucket.RefillInterval <= 0 {
		return fmt.Errorf("refill interval must be positive, got %v", lc.Bucket.RefillInterval)
	}

	if lc.Burst.Enabled {
		if lc.Burst.BurstCapacity < 0 {
			return fmt.Errorf("burst capacity cannot be negative, got %d", lc.Burst.BurstCapacity)
		}
		if lc.Burst.BurstRecoveryTime < 0 {
			return errors.New("burst recovery time cannot be negative")
		}
	}
	if lc.Burst.GracePeriod < 0 {
		return errors.New("grace period cannot be negative")
	}

	if lc.Tracking.TrackUsers && lc.Tracking.UserTTL <= 0 {
		return errors.New("user TTL must be positive when user tracking is enabled")
	}
	if lc.Tracking.TrackIPs && lc.Tracking.IPTTL <= 0 {
		return errors.New("IP TTL must be positive when IP tracking is enabled")
	}
	if lc.Tracking.CleanupInterval <= 0 {
		return errors.New("cleanup interval must be positive")
	}
	if lc.Tracking.MaxEvents < 0 {
		return errors.New("max events cannot be negative")
	}

	if lc.Headers.Enabled && lc.Headers.HeaderPrefix == "" {
		return errors.New("header prefix cannot be empty when headers are enabled")
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeJSON, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite, StorageTypeRedis}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	switch stc.Type {
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	case StorageTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("Redis address is required when storage type is redis")
		}
	}

	return nil
}

func (uc *UpstreamConfig) Validate() error {
	switch uc.Mode {
	case UpstreamModeEcho:
		return nil
	case UpstreamModeHTTP:
		if uc.URL == "" {
			return errors.New("upstream URL is required in http mode")
		}
	default:
		return fmt.Errorf("invalid upstream mode: %s", uc.Mode)
	}

	if uc.Timeout < 0 {
		return errors.New("upstream timeout cannot be negative")
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.EnableAuth && sec.AdminToken == "" {
		return errors.New("admin token is required when authentication is enabled")
	}
	if sec.AdminRequestsPerMinute < 0 {
		return errors.New("admin requests per minute cannot be negative")
	}
	if sec.AdminBurst < 0 {
		return errors.New("admin burst cannot be negative")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	if !slices.Contains([]string{"json", "text"}, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	if !slices.Contains([]string{"stdout", "stderr", "file"}, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}
