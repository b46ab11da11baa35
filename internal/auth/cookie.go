package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/temcen/homeser/pkg/models"
)

const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
)

// ParseCookieHeader splits a raw Cookie header into name/value pairs.
// Segments without '=' are skipped; later duplicates win.
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	if header == "" {
		return cookies
	}

	for _, segment := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies[name] = strings.TrimSpace(value)
	}

	return cookies
}

type CookieSettings struct {
	Secure   bool
	SameSite http.SameSite
	Path     string
	Domain   string
}

func (s CookieSettings) path() string {
	if s.Path == "" {
		return "/"
	}
	return s.Path
}

// SetAuthCookies writes both session cookies with Max-Age equal to each token's lifetime.
func SetAuthCookies(c *gin.Context, settings CookieSettings, pair models.TokenPair, accessTTL, refreshTTL time.Duration) {
	c.SetSameSite(settings.SameSite)
	c.SetCookie(AccessCookieName, pair.AccessToken, int(accessTTL.Seconds()), settings.path(), settings.Domain, settings.Secure, true)
	c.SetCookie(RefreshCookieName, pair.RefreshToken, int(refreshTTL.Seconds()), settings.path(), settings.Domain, settings.Secure, true)
}

func ClearAuthCookies(c *gin.Context, settings CookieSettings) {
	c.SetSameSite(settings.SameSite)
	c.SetCookie(AccessCookieName, "", -1, settings.path(), settings.Domain, settings.Secure, true)
	c.SetCookie(RefreshCookieName, "", -1, settings.path(), settings.Domain, settings.Secure, true)
}
