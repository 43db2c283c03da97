// Package config assembles the service configuration from built-in defaults,
// an optional YAML file and RATELIMITER_* environment variables, in that
// order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ratelimiter/internal/models"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "RATELIMITER_"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func loadFromFile(config *models.Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnUnknownKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// warnUnknownKeys logs keys the decoder would otherwise drop silently, which
// usually means a typo in a policy or redis setting.
func warnUnknownKeys(data []byte) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var probe models.Config
	err := dec.Decode(&probe)
	if err == nil || errors.Is(err, io.EOF) {
		return
	}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		for _, msg := range typeErr.Errors {
			if strings.Contains(msg, "not found in type") {
				slog.Warn("Unknown config key ignored", "detail", msg)
			}
		}
	}
}

func loadFromEnvironment(config *models.Config) {
	// Server configuration
	envInt("PORT", &config.Server.Port)
	envString("HOST", &config.Server.Host)
	envDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	envDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	envDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	envDuration("SHUTDOWN_TIMEOUT", &config.Server.ShutdownTimeout)

	// Redis configuration
	envString("REDIS_ADDR", &config.Redis.Addr)
	envString("REDIS_USERNAME", &config.Redis.Username)
	envString("REDIS_PASSWORD", &config.Redis.Password)
	envInt("REDIS_DB", &config.Redis.DB)
	envInt("REDIS_POOL_SIZE", &config.Redis.PoolSize)
	envDuration("REDIS_OPERATION_TIMEOUT", &config.Redis.OperationTimeout)
	envInt("REDIS_FAILURE_THRESHOLD", &config.Redis.FailureThreshold)
	envInt("REDIS_MAX_RETRIES", &config.Redis.MaxRetries)
	envDuration("REDIS_RETRY_DELAY", &config.Redis.RetryDelay)
	envDuration("REDIS_MAX_RETRY_DELAY", &config.Redis.MaxRetryDelay)
	envDuration("REDIS_HEALTH_CHECK_INTERVAL", &config.Redis.HealthCheckInterval)

	// Rate limit configuration
	envBool("RATE_LIMIT_ENABLED", &config.RateLimit.Enabled)
	envString("RATE_LIMIT_KEY_PREFIX", &config.RateLimit.KeyPrefix)
	envBool("TRUST_PROXY_HEADERS", &config.RateLimit.TrustProxyHeaders)
	envString("DEFAULT_TIER", &config.RateLimit.DefaultTier)
	envDuration("FALLBACK_SWEEP_INTERVAL", &config.RateLimit.FallbackSweep)
	if paths := os.Getenv(EnvPrefix + "SKIP_PATHS"); paths != "" {
		config.RateLimit.SkipPaths = splitList(paths)
	}
	loadPolicyOverrides(config)

	// Storage configuration
	envString("STORAGE_TYPE", &config.Storage.Type)
	envInt("STORAGE_MAX_ENTRIES", &config.Storage.MaxEntries)
	envInt("STORAGE_BUFFER_SIZE", &config.Storage.BufferSize)
	envString("DATABASE_DSN", &config.Storage.Database.DSN)
	envInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	envInt("DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)

	// Security configuration
	envString("ADMIN_TOKEN", &config.Security.AdminToken)

	// Logging configuration
	envString("LOG_LEVEL", &config.Logging.Level)
	envString("LOG_FORMAT", &config.Logging.Format)
	envString("LOG_OUTPUT", &config.Logging.Output)
	envString("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	envBool("METRICS_ENABLED", &config.Metrics.Enabled)
	envString("METRICS_PATH", &config.Metrics.Path)
	envInt("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	envString("SERVICE_NAME", &config.Observability.ServiceName)
	envBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	envString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	envString("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	envFloat("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)
}

// loadPolicyOverrides applies RATELIMITER_POLICY_<TIER>_<FIELD> variables to
// tiers already present in the policy map.
func loadPolicyOverrides(config *models.Config) {
	for name, policy := range config.RateLimit.Policies {
		prefix := "POLICY_" + strings.ToUpper(name) + "_"
		envDuration(prefix+"WINDOW", &policy.Window)
		envInt64(prefix+"MAX_REQUESTS", &policy.MaxRequests)
		envString(prefix+"ALGORITHM", &policy.Algorithm)
		envDuration(prefix+"BLOCK_DURATION", &policy.BlockDuration)
		config.RateLimit.Policies[name] = policy
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		} else {
			slog.Warn("Ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
		}
	}
}

func envInt64(name string, dst *int64) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		} else {
			slog.Warn("Ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		} else {
			slog.Warn("Ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
		}
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = strings.ToLower(v) == "true"
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		} else {
			slog.Warn("Ignoring invalid environment override", "variable", EnvPrefix+name, "error", err)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SaveExample writes an example configuration to filePath.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Security.AdminToken = "change-me"
	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "./data/violations.db"
	config.RateLimit.Rules = []models.RuleConfig{
		{PathPrefix: "/api/auth/", Tier: "auth"},
		{PathPrefix: "/api/admin/", Tier: "admin"},
		{PathPrefix: "/api/users/", Tier: "user"},
		{PathPrefix: "/api/", Tier: "api"},
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
