package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/budget"
	"github.com/agentforge/orchestrator-core/internal/circuitbreaker"
)

// cacheEntry is what gets stored under a request fingerprint.
type cacheEntry struct {
	Category string   `json:"category"`
	Skills   []string `json:"skills"`
}

// routeCache is the LLM-fallback result cache keyed by request fingerprint
// (§4.1: 12-char fingerprint, 24h TTL). A cache error never fails the
// route() call; the caller just bypasses the cache for that request.
type routeCache struct {
	redis  *circuitbreaker.RedisWrapper
	ttl    time.Duration
	logger *zap.Logger
}

func newRouteCache(wrapper *circuitbreaker.RedisWrapper, ttl time.Duration, logger *zap.Logger) *routeCache {
	return &routeCache{redis: wrapper, ttl: ttl, logger: logger}
}

func (c *routeCache) key(fingerprint string) string {
	return "router:classify:" + fingerprint
}

func (c *routeCache) get(ctx context.Context, fingerprint string) (Classification, bool) {
	if c == nil || c.redis == nil {
		return Classification{}, false
	}
	raw, err := c.redis.Get(ctx, c.key(fingerprint)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("route cache get failed, bypassing", zap.Error(err))
		}
		return Classification{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("route cache entry corrupt, bypassing", zap.Error(err))
		return Classification{}, false
	}
	return Classification{Category: budget.Category(entry.Category), Skills: entry.Skills}, true
}

func (c *routeCache) set(ctx context.Context, fingerprint string, cls Classification) {
	if c == nil || c.redis == nil {
		return
	}
	entry := cacheEntry{Category: string(cls.Category), Skills: cls.Skills}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key(fingerprint), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("route cache set failed", zap.Error(err))
	}
}
