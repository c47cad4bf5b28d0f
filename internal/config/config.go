// Package config loads the core's tunables from features.yaml (or
// CONFIG_PATH), with every limit defaulted per spec and overridable by
// environment variable, mirroring how the teacher layers env overrides
// on top of a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Limits captures the hard ceilings the orchestrator enforces across
// routing, decomposition, coordination, and spawning.
type Limits struct {
	MaxParallelAgents       int           `mapstructure:"max_parallel_agents"`
	MaxDelegationDepth      int           `mapstructure:"max_delegation_depth"`
	HardSpawnDepth          int           `mapstructure:"hard_spawn_depth"`
	DefaultTimeout          time.Duration `mapstructure:"-"`
	DefaultTimeoutMs        int           `mapstructure:"default_timeout_ms"`
	ChildTimeout            time.Duration `mapstructure:"-"`
	ChildTimeoutMs          int           `mapstructure:"child_timeout_ms"`
	LoopMaxIterations       int           `mapstructure:"loop_max_iterations"`
	LoopMaxDependencyDepth  int           `mapstructure:"loop_max_dependency_depth"`
	MinRequiredBudgetTokens int64         `mapstructure:"min_required_budget_tokens"`
}

// CircuitBreakerLimits mirrors the teacher's circuitbreaker.Config knobs,
// scoped to the thresholds the core's breakers are constructed with.
type CircuitBreakerLimits struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"-"`
	ResetTimeoutMs   int           `mapstructure:"reset_timeout_ms"`
	PerCallTimeout   time.Duration `mapstructure:"-"`
	PerCallTimeoutMs int           `mapstructure:"per_call_timeout_ms"`
	HalfOpenRequests int           `mapstructure:"half_open_requests"`
}

// CacheConfig captures the TTLs for the Redis-backed caches spec §6 names.
type CacheConfig struct {
	RouteCacheTTL            time.Duration `mapstructure:"-"`
	RouteCacheTTLSeconds     int           `mapstructure:"route_cache_ttl_seconds"`
	SessionContextTTL        time.Duration `mapstructure:"-"`
	SessionContextTTLSeconds int           `mapstructure:"session_context_ttl_seconds"`
	ToolResultTTL            time.Duration `mapstructure:"-"`
	ToolResultTTLSeconds     int           `mapstructure:"tool_result_ttl_seconds"`
}

// ObservabilityConfig mirrors the teacher's metrics/logging/tracing knobs.
type ObservabilityConfig struct {
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"metrics"`
	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`
	Tracing struct {
		Enabled      bool   `mapstructure:"enabled"`
		ServiceName  string `mapstructure:"service_name"`
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	} `mapstructure:"tracing"`
}

// RedisConfig addresses the shared cache/session/rate-limit store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PersistenceConfig addresses the organization/execution/provider_connection store.
type PersistenceConfig struct {
	Driver string `mapstructure:"driver"` // postgres | sqlite3
	DSN    string `mapstructure:"dsn"`
}

// TemporalConfig addresses the workflow engine's Temporal client.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// PolicyConfig points at the Rego policy bundle evaluated for budget
// downgrades and approval gates.
type PolicyConfig struct {
	BundlePath string `mapstructure:"bundle_path"`
	Enabled    bool   `mapstructure:"enabled"`
}

// Config is the top-level tree unmarshaled from features.yaml.
type Config struct {
	Limits         Limits               `mapstructure:"limits"`
	CircuitBreaker CircuitBreakerLimits `mapstructure:"circuit_breaker"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Persistence    PersistenceConfig    `mapstructure:"persistence"`
	Temporal       TemporalConfig       `mapstructure:"temporal"`
	Policy         PolicyConfig         `mapstructure:"policy"`
}

// applyDefaults fills in the spec's §6 defaults on a fresh viper instance
// before the YAML file is read, so any key the file omits still resolves.
func applyDefaults(v *viper.Viper) {
	v.SetDefault("limits.max_parallel_agents", 5)
	v.SetDefault("limits.max_delegation_depth", 3)
	v.SetDefault("limits.hard_spawn_depth", 5)
	v.SetDefault("limits.default_timeout_ms", 120000)
	v.SetDefault("limits.child_timeout_ms", 300000)
	v.SetDefault("limits.loop_max_iterations", 10)
	v.SetDefault("limits.loop_max_dependency_depth", 5)
	v.SetDefault("limits.min_required_budget_tokens", 1000)

	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.success_threshold", 2)
	v.SetDefault("circuit_breaker.reset_timeout_ms", 60000)
	v.SetDefault("circuit_breaker.per_call_timeout_ms", 30000)
	v.SetDefault("circuit_breaker.half_open_requests", 1)

	v.SetDefault("cache.route_cache_ttl_seconds", 86400)
	v.SetDefault("cache.session_context_ttl_seconds", 300)
	v.SetDefault("cache.tool_result_ttl_seconds", 600)

	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.port", 9090)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.service_name", "orchestration-core")
	v.SetDefault("observability.tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("persistence.driver", "sqlite3")
	v.SetDefault("persistence.dsn", "file:orchestrator.db?_foreign_keys=on")

	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "orchestrator-core")

	v.SetDefault("policy.bundle_path", "config/policy")
	v.SetDefault("policy.enabled", true)
}

// resolveDurations converts the millisecond/second integer fields loaded
// from YAML into the time.Duration fields callers actually use.
func resolveDurations(c *Config) {
	c.Limits.DefaultTimeout = time.Duration(c.Limits.DefaultTimeoutMs) * time.Millisecond
	c.Limits.ChildTimeout = time.Duration(c.Limits.ChildTimeoutMs) * time.Millisecond
	c.CircuitBreaker.ResetTimeout = time.Duration(c.CircuitBreaker.ResetTimeoutMs) * time.Millisecond
	c.CircuitBreaker.PerCallTimeout = time.Duration(c.CircuitBreaker.PerCallTimeoutMs) * time.Millisecond
	c.Cache.RouteCacheTTL = time.Duration(c.Cache.RouteCacheTTLSeconds) * time.Second
	c.Cache.SessionContextTTL = time.Duration(c.Cache.SessionContextTTLSeconds) * time.Second
	c.Cache.ToolResultTTL = time.Duration(c.Cache.ToolResultTTLSeconds) * time.Second
}

// Load resolves features.yaml from CONFIG_PATH, falling back to
// /app/config/features.yaml and then config/features.yaml, same search
// order the teacher's loader uses. A missing file is not an error: the
// defaults above are a complete, runnable configuration on their own.
func Load() (*Config, error) {
	v := viper.New()
	applyDefaults(v)
	v.SetEnvPrefix("CORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		if _, err := os.Stat("/app/config/features.yaml"); err == nil {
			cfgPath = "/app/config/features.yaml"
		} else {
			cfgPath = "config/features.yaml"
		}
	}
	if info, err := os.Stat(cfgPath); err == nil && info.IsDir() {
		cfgPath = filepath.Join(cfgPath, "features.yaml")
	}

	v.SetConfigFile(cfgPath)
	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(cfgPath); statErr != nil {
			// No config file on disk: defaults + env vars are enough.
			var c Config
			if decErr := v.Unmarshal(&c); decErr != nil {
				return nil, fmt.Errorf("unmarshal default config: %w", decErr)
			}
			resolveDurations(&c)
			return &c, nil
		}
		return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	resolveDurations(&c)
	return &c, nil
}

// MetricsPort returns the configured metrics port, honoring a METRICS_PORT
// env override ahead of the loaded config, falling back to defaultPort.
func MetricsPort(c *Config, defaultPort int) int {
	if p := os.Getenv("METRICS_PORT"); p != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(p)); err == nil && v > 0 {
			return v
		}
	}
	if c != nil && c.Observability.Metrics.Port > 0 {
		return c.Observability.Metrics.Port
	}
	return defaultPort
}

// ParseBool converts common string representations to bool, used for
// ad-hoc env-var toggles that don't warrant a viper key.
func ParseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n != 0
		}
	}
	return false
}
