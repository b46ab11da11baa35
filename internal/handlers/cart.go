package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

type CartHandler struct {
	logger *logrus.Logger
	carts  services.CartServiceInterface
}

func NewCartHandler(logger *logrus.Logger, carts services.CartServiceInterface) *CartHandler {
	return &CartHandler{logger: logger, carts: carts}
}

// Get returns the caller's cart. Anonymous callers get an empty cart.
func (h *CartHandler) Get(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	if identity.IsAnonymous() {
		c.JSON(http.StatusOK, &models.Cart{Items: []models.CartItem{}})
		return
	}

	cart, err := h.carts.Get(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

func (h *CartHandler) Add(c *gin.Context) {
	h.mutate(c, func(userID int64, req *models.CartItemRequest) (*models.Cart, error) {
		return h.carts.Add(c.Request.Context(), userID, req.ServiceID, req.Quantity)
	})
}

func (h *CartHandler) Remove(c *gin.Context) {
	h.mutate(c, func(userID int64, req *models.CartItemRequest) (*models.Cart, error) {
		return h.carts.Remove(c.Request.Context(), userID, req.ServiceID)
	})
}

func (h *CartHandler) UpdateQuantity(c *gin.Context) {
	h.mutate(c, func(userID int64, req *models.CartItemRequest) (*models.Cart, error) {
		return h.carts.UpdateQuantity(c.Request.Context(), userID, req.ServiceID, req.Quantity)
	})
}

func (h *CartHandler) mutate(c *gin.Context, op func(int64, *models.CartItemRequest) (*models.Cart, error)) {
	var req models.CartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	cart, err := op(middleware.GetIdentity(c).UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}
