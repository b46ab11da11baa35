package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

type SettingsHandler struct {
	logger   *logrus.Logger
	settings services.SettingsServiceInterface
}

func NewSettingsHandler(logger *logrus.Logger, settings services.SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{logger: logger, settings: settings}
}

func (h *SettingsHandler) PublicConfig(c *gin.Context) {
	cfg, err := h.settings.PublicConfig(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// Update expects the body to have passed the settings schema already.
func (h *SettingsHandler) Update(c *gin.Context) {
	var req models.SettingsUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), req.Settings)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"actor_id": middleware.GetIdentity(c).UserID,
		"keys":     len(req.Settings),
	}).Info("Site settings updated")
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (h *SettingsHandler) ClearCache(c *gin.Context) {
	deleted, err := h.settings.ClearCache(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cache cleared", "deleted": deleted})
}
