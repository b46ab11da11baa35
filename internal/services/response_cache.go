package services

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Path prefixes of the cached public catalog routes.
const (
	CachedServicesPath   = "/api/services"
	CachedCategoriesPath = "/api/categories"
)

const cacheScanCount = 500

// CacheInvalidator drops cached responses whose path starts with one of paths.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, paths ...string)
}

// ResponseCacheStore manages the Redis entries written by the response cache
// middleware. Keys are the configured prefix followed by the request path.
type ResponseCacheStore struct {
	client redis.Cmdable
	prefix string
	logger *logrus.Logger
}

func NewResponseCacheStore(client redis.Cmdable, prefix string, logger *logrus.Logger) *ResponseCacheStore {
	return &ResponseCacheStore{client: client, prefix: prefix, logger: logger}
}

// Clear deletes every entry under path ("" for the whole cache) and reports
// how many keys went.
func (c *ResponseCacheStore) Clear(ctx context.Context, path string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	pattern := c.prefix + path + "*"
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, cacheScanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete cache keys: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// Invalidate clears each path. Failures are logged; the write that triggered
// the invalidation has already been committed.
func (c *ResponseCacheStore) Invalidate(ctx context.Context, paths ...string) {
	for _, path := range paths {
		n, err := c.Clear(ctx, path)
		if err != nil {
			c.logger.WithError(err).WithField("path", path).Warn("Failed to invalidate cached responses")
			continue
		}
		if n > 0 {
			c.logger.WithFields(logrus.Fields{"path": path, "deleted": n}).Debug("Cached responses invalidated")
		}
	}
}
