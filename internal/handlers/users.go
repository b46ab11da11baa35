package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

type UserHandler struct {
	logger *logrus.Logger
	users  services.UserServiceInterface
}

func NewUserHandler(logger *logrus.Logger, users services.UserServiceInterface) *UserHandler {
	return &UserHandler{logger: logger, users: users}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	user, err := h.users.GetByID(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req models.ProfileUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	identity := middleware.GetIdentity(c)
	user, err := h.users.UpdateProfile(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ListUsers is the staff user directory.
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, pageSize := pageParams(c)

	result, err := h.users.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *UserHandler) Promote(c *gin.Context) {
	var req models.PromoteRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Promote(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":  user.ID,
		"actor_id": middleware.GetIdentity(c).UserID,
	}).Info("User promoted to staff")
	c.JSON(http.StatusOK, gin.H{"message": "User promoted to staff", "user": user})
}
