package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/services"
)

type UsageHandler struct {
	logger *logrus.Logger
	usage  services.UsageReaderInterface
}

func NewUsageHandler(logger *logrus.Logger, usage services.UsageReaderInterface) *UsageHandler {
	return &UsageHandler{logger: logger, usage: usage}
}

// Latest serves the most recent stored snapshot, or 404 once it has expired.
func (h *UsageHandler) Latest(c *gin.Context) {
	snap, err := h.usage.Latest(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snap.Report())
}
