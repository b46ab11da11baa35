package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

type AuthHandler struct {
	logger  *logrus.Logger
	auth    services.AuthServiceInterface
	cookies auth.CookieSettings
}

func NewAuthHandler(logger *logrus.Logger, authService services.AuthServiceInterface, cookies auth.CookieSettings) *AuthHandler {
	return &AuthHandler{logger: logger, auth: authService, cookies: cookies}
}

func (h *AuthHandler) setCookies(c *gin.Context, pair models.TokenPair) {
	auth.SetAuthCookies(c, h.cookies, pair, h.auth.AccessTTL(), h.auth.RefreshTTL())
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	user, pair, err := h.auth.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setCookies(c, pair)
	c.JSON(http.StatusCreated, models.AuthResponse{User: user, Message: "Registration successful"})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, pair, err := h.auth.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.setCookies(c, pair)
	c.JSON(http.StatusOK, models.AuthResponse{User: user, Message: "Login successful"})
}

// Refresh rotates both cookies from the refresh cookie. A rejected refresh
// token also clears the cookies.
func (h *AuthHandler) Refresh(c *gin.Context) {
	token, err := c.Cookie(auth.RefreshCookieName)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "REFRESH_TOKEN_MISSING", "message": "Refresh token not found"},
		})
		return
	}

	user, pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		auth.ClearAuthCookies(c, h.cookies)
		h.logger.WithError(err).Debug("Refresh rejected")
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": gin.H{"code": "INVALID_REFRESH_TOKEN", "message": "Invalid or expired refresh token"},
		})
		return
	}

	h.setCookies(c, pair)
	c.JSON(http.StatusOK, models.AuthResponse{User: user, Message: "Token refreshed"})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if token, err := c.Cookie(auth.RefreshCookieName); err == nil && token != "" {
		h.auth.Logout(c.Request.Context(), token)
	}
	auth.ClearAuthCookies(c, h.cookies)
	c.JSON(http.StatusOK, models.AuthResponse{Message: "Logout successful"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	c.JSON(http.StatusOK, identity.User)
}
