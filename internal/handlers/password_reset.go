package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

const resetRequestedMessage = "If an account exists for this email, a password reset link has been sent"

type PasswordResetHandler struct {
	logger *logrus.Logger
	resets services.PasswordResetServiceInterface
}

func NewPasswordResetHandler(logger *logrus.Logger, resets services.PasswordResetServiceInterface) *PasswordResetHandler {
	return &PasswordResetHandler{logger: logger, resets: resets}
}

// Request answers the same way whether or not the address is registered.
func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req models.PasswordResetRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.resets.Request(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": resetRequestedMessage})
}

func (h *PasswordResetHandler) Validate(c *gin.Context) {
	var req models.PasswordResetTokenRequest
	if !bindJSON(c, &req) {
		return
	}

	status, err := h.resets.Validate(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !status.Valid {
		c.JSON(http.StatusBadRequest, status)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req models.PasswordResetConfirmRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.resets.Confirm(c.Request.Context(), &req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully"})
}
