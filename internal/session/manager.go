package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentforge/orchestrator-core/internal/circuitbreaker"
	"github.com/agentforge/orchestrator-core/internal/metrics"
)

// Manager is the Redis-backed store for session context, fronted by a
// small local LRU cache so a hot session doesn't round-trip to Redis on
// every routing decision.
type Manager struct {
	client      *circuitbreaker.RedisWrapper
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Context
	cacheAccess map[string]time.Time
	maxEntries  int
}

// NewManager dials Redis at addr and wraps it with the shared circuit
// breaker, same as the teacher's session manager construction.
func NewManager(addr string, ttl time.Duration, logger *zap.Logger) (*Manager, error) {
	password := os.Getenv("REDIS_PASSWORD")

	redisClient := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = 300 * time.Second
	}

	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         ttl,
		localCache:  make(map[string]*Context),
		cacheAccess: make(map[string]time.Time),
		maxEntries:  10000,
	}, nil
}

// GetContext returns the recorded recent-category/entity memory for a
// session, or ErrNotFound / ErrExpired.
func (m *Manager) GetContext(ctx context.Context, sessionID string) (*Context, error) {
	m.mu.RLock()
	if sc, ok := m.localCache[sessionID]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if sc.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return sc, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("get session context: %w", err)
	}

	var sc Context
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("unmarshal session context: %w", err)
	}
	if sc.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &sc
	m.cacheAccess[sessionID] = time.Now()
	m.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	return &sc, nil
}

// UpdateContext records the category/skills/entities a request resolved
// to, for the router's follow-up bias on the session's next request.
func (m *Manager) UpdateContext(ctx context.Context, sessionID, organizationID, userID, category string, skills, entities []string) error {
	now := time.Now()
	sc := &Context{
		SessionID:      sessionID,
		OrganizationID: organizationID,
		UserID:         userID,
		RecentCategory: category,
		RecentSkills:   skills,
		RecentEntities: entities,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}

	data, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("marshal session context: %w", err)
	}
	if err := m.client.Set(ctx, key(sessionID), data, m.ttl).Err(); err != nil {
		return fmt.Errorf("set session context: %w", err)
	}

	m.mu.Lock()
	m.localCache[sessionID] = sc
	m.cacheAccess[sessionID] = now
	m.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	metrics.SessionsCreated.Inc()
	return nil
}

// Delete removes a session's recorded context.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session context: %w", err)
	}
	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()
	return nil
}

// Close releases the underlying Redis connection.
func (m *Manager) Close() error {
	return m.client.Close()
}

func key(sessionID string) string {
	return fmt.Sprintf("session_ctx:%s", sessionID)
}

// evictLocked drops the least-recently-accessed half of the local cache
// once it grows past maxEntries. Caller must hold m.mu.
func (m *Manager) evictLocked() {
	if len(m.localCache) <= m.maxEntries {
		return
	}

	type entry struct {
		id   string
		seen time.Time
	}
	entries := make([]entry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, entry{id: id, seen: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].seen.Before(entries[i].seen) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxEntries / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
		metrics.SessionCacheEvictions.Inc()
	}
}
