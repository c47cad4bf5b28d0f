package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/circuitbreaker"
	"github.com/agentforge/orchestrator-core/internal/metrics"
	"github.com/agentforge/orchestrator-core/internal/tracing"
)

// Dispatcher implements modelexec.ToolDispatcher: it canonicalizes a tool
// name, resolves the caller's provider connection, runs the call through a
// per-provider circuit breaker with a Redis result cache in front of it,
// and normalizes known-idempotent provider errors into successes (§4.7).
type Dispatcher struct {
	logger      *zap.Logger
	connections ConnectionStore
	invoker     Invoker
	cache       *circuitbreaker.RedisWrapper
	cacheTTL    time.Duration

	breakersMu sync.Mutex
	breakers   map[string]*circuitbreaker.CircuitBreaker
}

// toolCallTimeout and toolBreakerResetTimeout match the circuit breaker
// thresholds for provider tool calls (§4.7): 30s per call, 60s before an
// open breaker tries half-open again.
const (
	toolCallTimeout         = 30 * time.Second
	toolBreakerResetTimeout = 60 * time.Second
)

// NewDispatcher constructs a Dispatcher. cache may be nil to disable
// result caching.
func NewDispatcher(logger *zap.Logger, connections ConnectionStore, invoker Invoker, cache *circuitbreaker.RedisWrapper, cacheTTL time.Duration) *Dispatcher {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Dispatcher{
		logger:      logger,
		connections: connections,
		invoker:     invoker,
		cache:       cache,
		cacheTTL:    cacheTTL,
		breakers:    make(map[string]*circuitbreaker.CircuitBreaker),
	}
}

// Dispatch resolves toolName (possibly a legacy alias), runs it against
// organizationID's connection for that provider, and returns the raw
// provider response. It satisfies modelexec.ToolDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, organizationID, toolName string, input map[string]interface{}) (string, error) {
	start := time.Now()
	canonical := NormalizeToolName(toolName)

	descriptor, ok := Lookup(canonical)
	if !ok {
		metrics.RecordToolInvocation("unknown", toolName, false, 0)
		return "", fmt.Errorf("tools: unknown tool %q", toolName)
	}

	ctx, span := tracing.StartToolSpan(ctx, descriptor.Provider, descriptor.Tool, organizationID, "", "")
	defer span.End()

	cacheKey := d.resultCacheKey(organizationID, canonical, input)
	if d.cache != nil {
		if cached, hit := d.getCached(ctx, cacheKey); hit {
			metrics.ToolCacheHits.WithLabelValues(descriptor.Provider, descriptor.Tool).Inc()
			metrics.RecordToolInvocation(descriptor.Provider, descriptor.Tool, true, float64(time.Since(start).Milliseconds()))
			return cached, nil
		}
		metrics.ToolCacheMisses.WithLabelValues(descriptor.Provider, descriptor.Tool).Inc()
	}

	conn, err := d.connections.Get(ctx, organizationID, descriptor.Provider)
	if err != nil {
		metrics.RecordToolInvocation(descriptor.Provider, descriptor.Tool, false, float64(time.Since(start).Milliseconds()))
		return "", fmt.Errorf("tools: resolve connection for %s: %w", descriptor.Provider, err)
	}

	breaker := d.breakerFor(descriptor.Provider)
	var result string
	cbErr := breaker.Execute(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, toolCallTimeout)
		defer cancel()
		res, invokeErr := d.invoker.Invoke(callCtx, conn, descriptor.Tool, input)
		if invokeErr != nil {
			if descriptor.IsIdempotentError(invokeErr.Error()) {
				result = "already_applied"
				return nil
			}
			return invokeErr
		}
		result = res
		return nil
	})

	durationMs := float64(time.Since(start).Milliseconds())
	if cbErr != nil {
		metrics.RecordToolInvocation(descriptor.Provider, descriptor.Tool, false, durationMs)
		return "", cbErr
	}

	metrics.RecordToolInvocation(descriptor.Provider, descriptor.Tool, true, durationMs)
	if d.cache != nil {
		d.setCached(ctx, cacheKey, result)
	}
	return result, nil
}

// toolBreakerConfig overrides DefaultConfig's reset timeout: provider tool
// calls reset from open to half-open after 60s, not the generic 10s default.
func toolBreakerConfig() circuitbreaker.Config {
	cfg := circuitbreaker.DefaultConfig()
	cfg.Timeout = toolBreakerResetTimeout
	return cfg
}

func (d *Dispatcher) breakerFor(provider string) *circuitbreaker.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	if b, ok := d.breakers[provider]; ok {
		return b
	}
	b := circuitbreaker.NewCircuitBreaker("tools:"+provider, toolBreakerConfig(), d.logger)
	d.breakers[provider] = b
	return b
}

func (d *Dispatcher) resultCacheKey(organizationID, canonical string, input map[string]interface{}) string {
	encoded, _ := json.Marshal(input)
	sum := sha256.Sum256(encoded)
	return fmt.Sprintf("tool-cache:%s:%s:%s", organizationID, canonical, hex.EncodeToString(sum[:]))
}

func (d *Dispatcher) getCached(ctx context.Context, key string) (string, bool) {
	cmd := d.cache.Get(ctx, key)
	if cmd.Err() != nil {
		return "", false
	}
	return cmd.Val(), true
}

func (d *Dispatcher) setCached(ctx context.Context, key, value string) {
	if err := d.cache.Set(ctx, key, value, d.cacheTTL).Err(); err != nil {
		d.logger.Warn("tools: failed to cache result", zap.Error(err))
	}
}
