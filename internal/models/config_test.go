package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	// Test server defaults
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.ShutdownTimeout)

	// Test redis defaults
	assert.Equal(t, "localhost:6379", config.Redis.Addr)
	assert.Equal(t, 500*time.Millisecond, config.Redis.OperationTimeout)
	assert.Equal(t, 3, config.Redis.FailureThreshold)
	assert.Equal(t, 5, config.Redis.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, config.Redis.RetryDelay)

	// Test rate limit defaults
	assert.True(t, config.RateLimit.Enabled)
	assert.Equal(t, "rl", config.RateLimit.KeyPrefix)
	assert.False(t, config.RateLimit.TrustProxyHeaders)
	require.Len(t, config.RateLimit.Policies, 5)
	auth := config.RateLimit.Policies["auth"]
	assert.Equal(t, 15*time.Minute, auth.Window)
	assert.Equal(t, int64(5), auth.MaxRequests)
	assert.Equal(t, AlgorithmSlidingWindow, auth.Algorithm)
	assert.Equal(t, AlgorithmTokenBucket, config.RateLimit.Policies["user"].Algorithm)
	assert.Contains(t, config.RateLimit.SkipPaths, "/health")

	// Test storage defaults
	assert.Equal(t, StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, 1000, config.Storage.MaxEntries)

	// Test logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)

	// Test metrics defaults
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.Equal(t, 9090, config.Metrics.Port)

	// Test observability defaults
	assert.Equal(t, "ratelimiter", config.Observability.ServiceName)
	assert.False(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, "stdout", config.Observability.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Observability.Tracing.SampleRate)
}

func TestDefaultPolicyConfigs_AreValid(t *testing.T) {
	for name, p := range DefaultPolicyConfigs() {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, p.Validate())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid default config",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid server config",
			mutate:   func(c *Config) { c.Server.Port = -1 },
			errorMsg: "invalid server config",
		},
		{
			name:     "invalid redis config",
			mutate:   func(c *Config) { c.Redis.Addr = "" },
			errorMsg: "invalid redis config",
		},
		{
			name: "invalid rate limit config",
			mutate: func(c *Config) {
				c.RateLimit.Policies["auth"] = PolicyConfig{Window: time.Minute, MaxRequests: 0, Algorithm: AlgorithmFixedWindow}
			},
			errorMsg: "invalid rate limit config",
		},
		{
			name:     "invalid storage config",
			mutate:   func(c *Config) { c.Storage.Type = "invalid-type" },
			errorMsg: "invalid storage config",
		},
		{
			name:     "invalid logging config",
			mutate:   func(c *Config) { c.Logging.Level = "verbose" },
			errorMsg: "invalid logging config",
		},
		{
			name:     "invalid metrics config",
			mutate:   func(c *Config) { c.Metrics.Port = 0 },
			errorMsg: "invalid metrics config",
		},
		{
			name:     "invalid observability config",
			mutate:   func(c *Config) { c.Observability.ServiceName = "" },
			errorMsg: "invalid observability config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestRedisConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(rc *RedisConfig)
		errorMsg string
	}{
		{name: "valid", mutate: func(rc *RedisConfig) {}},
		{name: "negative db", mutate: func(rc *RedisConfig) { rc.DB = -1 }, errorMsg: "db cannot be negative"},
		{name: "zero operation timeout", mutate: func(rc *RedisConfig) { rc.OperationTimeout = 0 }, errorMsg: "operation timeout"},
		{name: "zero failure threshold", mutate: func(rc *RedisConfig) { rc.FailureThreshold = 0 }, errorMsg: "failure threshold"},
		{name: "negative retries", mutate: func(rc *RedisConfig) { rc.MaxRetries = -1 }, errorMsg: "max retries"},
		{
			name: "max delay below delay",
			mutate: func(rc *RedisConfig) {
				rc.RetryDelay = time.Second
				rc.MaxRetryDelay = 100 * time.Millisecond
			},
			errorMsg: "max retry delay",
		},
		{name: "zero health interval", mutate: func(rc *RedisConfig) { rc.HealthCheckInterval = 0 }, errorMsg: "health check interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := NewDefaultConfig().Redis
			tt.mutate(&rc)

			err := rc.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestPolicyConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		policy   PolicyConfig
		errorMsg string
	}{
		{
			name:   "valid token bucket",
			policy: PolicyConfig{Window: time.Second, MaxRequests: 10, Algorithm: AlgorithmTokenBucket},
		},
		{
			name:     "sub-millisecond window",
			policy:   PolicyConfig{Window: time.Microsecond, MaxRequests: 10, Algorithm: AlgorithmFixedWindow},
			errorMsg: "window",
		},
		{
			name:     "zero max requests",
			policy:   PolicyConfig{Window: time.Second, MaxRequests: 0, Algorithm: AlgorithmFixedWindow},
			errorMsg: "max requests",
		},
		{
			name:     "unknown algorithm",
			policy:   PolicyConfig{Window: time.Second, MaxRequests: 1, Algorithm: "leaky_bucket"},
			errorMsg: "invalid algorithm",
		},
		{
			name:     "negative block",
			policy:   PolicyConfig{Window: time.Second, MaxRequests: 1, Algorithm: AlgorithmFixedWindow, BlockDuration: -time.Second},
			errorMsg: "block duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestRateLimitConfig_ValidateRules(t *testing.T) {
	rl := NewDefaultConfig().RateLimit
	rl.Rules = []RuleConfig{{PathPrefix: "/api/auth/", Tier: "auth"}}
	assert.NoError(t, rl.Validate())

	rl.Rules = append(rl.Rules, RuleConfig{PathPrefix: "", Tier: "api"})
	err := rl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule 1")

	rl = NewDefaultConfig().RateLimit
	rl.KeyPrefix = ""
	assert.Error(t, rl.Validate())
}

func TestStorageConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   StorageConfig
		errorMsg string
	}{
		{name: "none", config: StorageConfig{Type: StorageTypeNone}},
		{name: "memory", config: StorageConfig{Type: StorageTypeMemory, MaxEntries: 10}},
		{name: "memory without capacity", config: StorageConfig{Type: StorageTypeMemory}, errorMsg: "max entries"},
		{name: "sqlite without dsn", config: StorageConfig{Type: StorageTypeSQLite}, errorMsg: "DSN is required"},
		{
			name:   "postgres with dsn",
			config: StorageConfig{Type: StorageTypePostgres, Database: DatabaseConfig{DSN: "postgres://localhost/rl"}},
		},
		{name: "unknown", config: StorageConfig{Type: "mongo"}, errorMsg: "invalid storage type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestLoggingConfig_Validate(t *testing.T) {
	valid := LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}
	assert.NoError(t, valid.Validate())

	fileWithoutPath := LoggingConfig{Level: "info", Format: "json", Output: "file"}
	err := fileWithoutPath.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file path is required")

	badFormat := LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}
	assert.Error(t, badFormat.Validate())
}

func TestObservabilityConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   ObservabilityConfig
		errorMsg string
	}{
		{name: "tracing disabled", config: ObservabilityConfig{ServiceName: "rl"}},
		{
			name: "otlp without endpoint",
			config: ObservabilityConfig{
				ServiceName: "rl",
				Tracing:     TracingConfig{Enabled: true, Exporter: "otlp", SampleRate: 1},
			},
			errorMsg: "OTLP endpoint",
		},
		{
			name: "bad sample rate",
			config: ObservabilityConfig{
				ServiceName: "rl",
				Tracing:     TracingConfig{Enabled: true, Exporter: "stdout", SampleRate: 1.5},
			},
			errorMsg: "sample rate",
		},
		{
			name: "unknown exporter",
			config: ObservabilityConfig{
				ServiceName: "rl",
				Tracing:     TracingConfig{Enabled: true, Exporter: "zipkin", SampleRate: 1},
			},
			errorMsg: "invalid tracing exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}
