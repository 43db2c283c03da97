// Package models - Service configuration and operational settings.
// This file defines the configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, redis, rate limits, etc.)
// - Defaults that work out of the box against a local Redis
// - Validation catches misconfigurations before any connection is made
// - Every field is reachable from YAML and most from the environment
package models

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Storage type constants for the violation log.
const (
	StorageTypeNone     = "none"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Algorithm names accepted in policy configuration.
const (
	AlgorithmSlidingWindow = "sliding_window"
	AlgorithmFixedWindow   = "fixed_window"
	AlgorithmTokenBucket   = "token_bucket"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Redis: Shared rate limit store connection and availability tuning
// - RateLimit: Policies per tier, endpoint classification, fallback
// - Storage: Violation log persistence
// - Security: Admin API protection
// - Logging, Metrics, Observability: Operational telemetry
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Redis         RedisConfig         `yaml:"redis" json:"redis"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" json:"port"`
	Host            string        `yaml:"host" json:"host"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// RedisConfig configures the shared rate limit store.
//
// Availability Model:
// - FailureThreshold consecutive connectivity failures mark the store unavailable
// - MaxRetries reconnect attempts follow, backing off from RetryDelay to MaxRetryDelay
// - HealthCheckInterval probes keep running afterwards until the store answers
type RedisConfig struct {
	Addr                string        `yaml:"addr" json:"addr"`
	Username            string        `yaml:"username" json:"username"`
	Password            string        `yaml:"password" json:"-"`
	DB                  int           `yaml:"db" json:"db"`
	PoolSize            int           `yaml:"pool_size" json:"pool_size"`
	DialTimeout         time.Duration `yaml:"dial_timeout" json:"dial_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout" json:"write_timeout"`
	OperationTimeout    time.Duration `yaml:"operation_timeout" json:"operation_timeout"`
	FailureThreshold    int           `yaml:"failure_threshold" json:"failure_threshold"`
	MaxRetries          int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay          time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxRetryDelay       time.Duration `yaml:"max_retry_delay" json:"max_retry_delay"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
}

// RateLimitConfig describes the policy table and how requests map onto it.
// Policies are keyed by tier name (default, auth, api, user, admin); a tier
// entry replaces the built-in policy for that tier as a whole.
type RateLimitConfig struct {
	Enabled           bool                    `yaml:"enabled" json:"enabled"`
	KeyPrefix         string                  `yaml:"key_prefix" json:"key_prefix"`
	TrustProxyHeaders bool                    `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
	DefaultTier       string                  `yaml:"default_tier" json:"default_tier"`
	Policies          map[string]PolicyConfig `yaml:"policies" json:"policies"`
	Rules             []RuleConfig            `yaml:"rules" json:"rules"`
	SkipPaths         []string                `yaml:"skip_paths" json:"skip_paths"`
	FallbackSweep     time.Duration           `yaml:"fallback_sweep_interval" json:"fallback_sweep_interval"`
}

type PolicyConfig struct {
	Window        time.Duration `yaml:"window" json:"window"`
	MaxRequests   int64         `yaml:"max_requests" json:"max_requests"`
	Algorithm     string        `yaml:"algorithm" json:"algorithm"`
	BlockDuration time.Duration `yaml:"block_duration" json:"block_duration"`
}

// RuleConfig maps requests to a tier by path prefix and optional methods.
type RuleConfig struct {
	PathPrefix string   `yaml:"path_prefix" json:"path_prefix"`
	Methods    []string `yaml:"methods" json:"methods"`
	Tier       string   `yaml:"tier" json:"tier"`
}

// StorageConfig configures the violation log.
type StorageConfig struct {
	Type       string         `yaml:"type" json:"type"`
	MaxEntries int            `yaml:"max_entries" json:"max_entries"`
	BufferSize int            `yaml:"buffer_size" json:"buffer_size"`
	Database   DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"-"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type SecurityConfig struct {
	// AdminToken protects the admin API. An empty token disables the admin API.
	AdminToken string `yaml:"admin_token" json:"-"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultPolicyConfigs returns the built-in policy table.
//
// Default Policy Rationale:
// - auth: 5 attempts per 15 minutes, sliding window so bursts at a window edge do not double the budget
// - api: 100 requests per 15 minutes, sliding window
// - user: 60 requests per minute, token bucket to allow short bursts while answering questions
// - admin: 100 requests per minute, fixed window
// - default: 100 requests per 15 minutes, fixed window
func DefaultPolicyConfigs() map[string]PolicyConfig {
	return map[string]PolicyConfig{
		"default": {Window: 15 * time.Minute, MaxRequests: 100, Algorithm: AlgorithmFixedWindow},
		"auth":    {Window: 15 * time.Minute, MaxRequests: 5, Algorithm: AlgorithmSlidingWindow},
		"api":     {Window: 15 * time.Minute, MaxRequests: 100, Algorithm: AlgorithmSlidingWindow},
		"user":    {Window: time.Minute, MaxRequests: 60, Algorithm: AlgorithmTokenBucket},
		"admin":   {Window: time.Minute, MaxRequests: 100, Algorithm: AlgorithmFixedWindow},
	}
}

// NewDefaultConfig creates a configuration with defaults suitable for a
// single instance talking to a local Redis.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr:                "localhost:6379",
			PoolSize:            10,
			DialTimeout:         2 * time.Second,
			ReadTimeout:         time.Second,
			WriteTimeout:        time.Second,
			OperationTimeout:    500 * time.Millisecond,
			FailureThreshold:    3,
			MaxRetries:          5,
			RetryDelay:          100 * time.Millisecond,
			MaxRetryDelay:       5 * time.Second,
			HealthCheckInterval: 5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			KeyPrefix:     "rl",
			DefaultTier:   "default",
			Policies:      DefaultPolicyConfigs(),
			SkipPaths:     []string{"/health", "/api/v1/health"},
			FallbackSweep: time.Minute,
		},
		Storage: StorageConfig{
			Type:       StorageTypeMemory,
			MaxEntries: 1000,
			BufferSize: 256,
			Database: DatabaseConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
			},
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
			ServiceName: "ratelimiter",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
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

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 || sc.ShutdownTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	return nil
}

func (rc *RedisConfig) Validate() error {
	if rc.Addr == "" {
		return errors.New("redis address cannot be empty")
	}

	if rc.DB < 0 {
		return errors.New("redis db cannot be negative")
	}

	if rc.PoolSize < 0 {
		return errors.New("pool size cannot be negative")
	}

	if rc.OperationTimeout <= 0 {
		return errors.New("operation timeout must be positive")
	}

	if rc.FailureThreshold < 1 {
		return errors.New("failure threshold must be at least 1")
	}

	if rc.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}

	if rc.RetryDelay < 0 || rc.MaxRetryDelay < 0 {
		return errors.New("retry delays cannot be negative")
	}

	if rc.MaxRetryDelay > 0 && rc.MaxRetryDelay < rc.RetryDelay {
		return errors.New("max retry delay cannot be less than retry delay")
	}

	if rc.HealthCheckInterval <= 0 {
		return errors.New("health check interval must be positive")
	}

	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if rl.KeyPrefix == "" {
		return errors.New("key prefix cannot be empty")
	}

	for name, p := range rl.Policies {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("policy %q: %w", name, err)
		}
	}

	for i, r := range rl.Rules {
		if r.PathPrefix == "" {
			return fmt.Errorf("rule %d: path prefix cannot be empty", i)
		}
		if r.Tier == "" {
			return fmt.Errorf("rule %d: tier cannot be empty", i)
		}
	}

	if rl.FallbackSweep < 0 {
		return errors.New("fallback sweep interval cannot be negative")
	}

	return nil
}

func (pc *PolicyConfig) Validate() error {
	if pc.Window < time.Millisecond {
		return errors.New("window must be at least 1ms")
	}

	if pc.MaxRequests < 1 {
		return errors.New("max requests must be at least 1")
	}

	validAlgorithms := []string{AlgorithmSlidingWindow, AlgorithmFixedWindow, AlgorithmTokenBucket}
	if !slices.Contains(validAlgorithms, pc.Algorithm) {
		return fmt.Errorf("invalid algorithm: %s", pc.Algorithm)
	}

	if pc.BlockDuration < 0 {
		return errors.New("block duration cannot be negative")
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	validTypes := []string{StorageTypeNone, StorageTypeMemory, StorageTypePostgres, StorageTypeSQLite}
	if !slices.Contains(validTypes, stc.Type) {
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.BufferSize < 0 {
		return errors.New("buffer size cannot be negative")
	}

	if stc.Type == StorageTypeMemory && stc.MaxEntries <= 0 {
		return errors.New("max entries must be positive for memory storage")
	}

	if (stc.Type == StorageTypePostgres || stc.Type == StorageTypeSQLite) && stc.Database.DSN == "" {
		return errors.New("database DSN is required for database storage")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !slices.Contains(validOutputs, lc.Output) {
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

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	validExporters := []string{"stdout", "otlp"}
	if !slices.Contains(validExporters, oc.Tracing.Exporter) {
		return fmt.Errorf("invalid tracing exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required when exporter is otlp")
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
