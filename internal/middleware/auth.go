package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
)

const identityKey = "identity"

type IdentityResolver interface {
	Resolve(ctx context.Context, cookieHeader string) (auth.Identity, error)
}

// Authenticate resolves the cookie session on every request. Any failure
// leaves the request anonymous; it never rejects.
func Authenticate(resolver IdentityResolver, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := resolver.Resolve(c.Request.Context(), c.GetHeader("Cookie"))
		if err != nil {
			if !errors.Is(err, auth.ErrNoToken) {
				logger.WithError(err).WithField("path", c.Request.URL.Path).Debug("Cookie authentication failed, continuing anonymously")
			}
			identity = auth.Anonymous
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// GetIdentity returns the resolved identity, or Anonymous if Authenticate did not run.
func GetIdentity(c *gin.Context) auth.Identity {
	if v, ok := c.Get(identityKey); ok {
		if identity, ok := v.(auth.Identity); ok {
			return identity
		}
	}
	return auth.Anonymous
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetIdentity(c).IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "AUTHENTICATION_REQUIRED",
					"message": "Authentication credentials were not provided",
				},
			})
			return
		}
		c.Next()
	}
}

func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity.IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "AUTHENTICATION_REQUIRED",
					"message": "Authentication credentials were not provided",
				},
			})
			return
		}
		if !identity.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":    "PERMISSION_DENIED",
					"message": "Staff access required",
				},
			})
			return
		}
		c.Next()
	}
}
