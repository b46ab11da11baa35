package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const defaultCacheTTL = 5 * time.Minute

// cachedResponse is the stored form of a cached GET response.
type cachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type cacheWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *cacheWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *cacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheKey is the key under which a request's response is stored. Every key
// starts with prefix so the whole cache can be cleared by pattern.
func CacheKey(prefix string, r *http.Request) string {
	key := prefix + r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

// ResponseCache serves public GET responses from Redis. Responses are shared
// across users, so it only belongs on routes that do not vary by identity.
func ResponseCache(client redis.Cmdable, prefix string, ttl time.Duration, logger *logrus.Logger) gin.HandlerFunc {
	if client == nil {
		logger.Warn("Redis client not available, caching disabled")
		return func(c *gin.Context) { c.Next() }
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := CacheKey(prefix, c.Request)

		if raw, err := client.Get(ctx, key).Bytes(); err == nil {
			var cached cachedResponse
			if err := json.Unmarshal(raw, &cached); err == nil {
				c.Header("X-Cache", "HIT")
				c.Data(cached.StatusCode, cached.ContentType, cached.Body)
				c.Abort()
				return
			}
		}

		writer := &cacheWriter{ResponseWriter: c.Writer}
		c.Writer = writer
		c.Header("X-Cache", "MISS")

		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 || writer.body.Len() == 0 {
			return
		}

		payload, err := json.Marshal(cachedResponse{
			StatusCode:  status,
			ContentType: writer.Header().Get("Content-Type"),
			Body:        writer.body.Bytes(),
		})
		if err != nil {
			return
		}
		if err := client.Set(ctx, key, payload, ttl).Err(); err != nil {
			logger.WithError(err).WithField("cache_key", key).Warn("Failed to cache response")
		}
	}
}
