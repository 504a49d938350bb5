// Package cache provides Redis caching for hot comment pages.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client. A nil *Cache or a Cache without a live client
// is valid and disables caching, so callers never need to branch on
// availability.
type Cache struct {
	client *redis.Client
}

// New connects to Redis at the given address (host:port or redis:// URL).
// Connection failures are logged and yield a disabled cache; the comment
// subsystem works without Redis, just slower.
func New(addr string) *Cache {
	var opts *redis.Options
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			middleware.Logger.Warn("invalid REDIS_URL, continuing without cache",
				slog.String("addr", addr), slog.String("error", err.Error()))
			return &Cache{}
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: addr}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		middleware.Logger.Warn("Redis unavailable, continuing without cache",
			slog.String("error", err.Error()))
		return &Cache{}
	}

	middleware.Logger.Info("Redis connected successfully")
	return &Cache{client: client}
}

// NewWithClient wraps an existing Redis client. Used by tests (miniredis).
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Enabled reports whether a live Redis client is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Close releases the underlying client connection.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// Ping probes the Redis connection, for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return redis.ErrClosed
	}
	return c.client.Ping(ctx).Err()
}

const pageTTL = 2 * time.Minute

// scopeKey builds the cache key prefix for one comment scope.
func scopeKey(scope models.ScopeRef) string {
	if scope.IsChapter() {
		return fmt.Sprintf("comments:novel:%d:chapter:%d", scope.NovelID, *scope.ChapterID)
	}
	return fmt.Sprintf("comments:novel:%d", scope.NovelID)
}

// GetPage loads a cached comment page into dest. Returns false on miss,
// disabled cache, or decode failure.
func (c *Cache) GetPage(ctx context.Context, scope models.ScopeRef, page, limit int, dest any) bool {
	if !c.Enabled() {
		return false
	}
	key := fmt.Sprintf("%s:page:%d:limit:%d", scopeKey(scope), page, limit)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			observability.RedisErrorRate.WithLabelValues("get").Inc()
		}
		observability.PageCacheRequests.WithLabelValues("miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		observability.PageCacheRequests.WithLabelValues("miss").Inc()
		return false
	}
	observability.PageCacheRequests.WithLabelValues("hit").Inc()
	return true
}

// SetPage stores a comment page under the scope's key space.
func (c *Cache) SetPage(ctx context.Context, scope models.ScopeRef, page, limit int, value any) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	key := fmt.Sprintf("%s:page:%d:limit:%d", scopeKey(scope), page, limit)
	if err := c.client.Set(ctx, key, raw, pageTTL).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("set").Inc()
		middleware.Logger.Warn("cache set failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// InvalidateScope drops every cached page for a scope. Called after any
// mutation in that scope; the store stays the single source of truth.
func (c *Cache) InvalidateScope(ctx context.Context, scope models.ScopeRef) {
	if !c.Enabled() {
		return
	}
	pattern := scopeKey(scope) + ":page:*"
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("scan").Inc()
		middleware.Logger.Warn("cache scan failed", slog.String("pattern", pattern), slog.String("error", err.Error()))
		return
	}
	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("del").Inc()
			middleware.Logger.Warn("cache invalidation failed", slog.String("error", err.Error()))
		}
	}
}
