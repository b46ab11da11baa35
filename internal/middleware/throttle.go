package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/services"
)

type Throttler interface {
	Allow(ctx context.Context, scope services.ThrottleScope, client string) (services.ThrottleDecision, error)
}

// Throttle applies every matching scope to the request, keyed by client IP.
// A store failure lets the request through.
func Throttle(limiter Throttler, scopes []services.ThrottleScope, metrics *services.MetricsCollector, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, scope := range scopes {
			if !scope.Applies(c.Request.Method, c.Request.URL.Path) {
				continue
			}

			client := c.ClientIP()
			decision, err := limiter.Allow(c.Request.Context(), scope, client)
			if err != nil {
				logger.WithError(err).WithField("scope", scope.Name).Warn("Throttle check failed, allowing request")
				continue
			}
			metrics.RecordThrottle(scope.Name, decision.Allowed)

			c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining()))

			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				c.Header("Retry-After", strconv.Itoa(retryAfter))

				logger.WithFields(logrus.Fields{
					"scope":     scope.Name,
					"client_ip": client,
					"limit":     decision.Limit,
				}).Warn("Request throttled")

				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error": gin.H{
						"code":    "THROTTLED",
						"message": "Request was throttled. Expected available in " + strconv.Itoa(retryAfter) + " seconds.",
					},
				})
				return
			}
		}
		c.Next()
	}
}
