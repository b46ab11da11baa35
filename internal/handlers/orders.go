package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

type OrderHandler struct {
	logger *logrus.Logger
	orders services.OrderServiceInterface
}

func NewOrderHandler(logger *logrus.Logger, orders services.OrderServiceInterface) *OrderHandler {
	return &OrderHandler{logger: logger, orders: orders}
}

// Checkout turns the caller's cart into a pending order and returns the
// gateway page the browser should be sent to.
func (h *OrderHandler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if !bindJSON(c, &req) {
		return
	}

	identity := middleware.GetIdentity(c)
	resp, err := h.orders.Checkout(c.Request.Context(), identity.UserID, identity.User.Email, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) ListMine(c *gin.Context) {
	page, pageSize := pageParams(c)

	result, err := h.orders.ListForUser(c.Request.Context(), middleware.GetIdentity(c).UserID, page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *OrderHandler) GetMine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetForUser(c.Request.Context(), middleware.GetIdentity(c).UserID, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) ListAll(c *gin.Context) {
	page, pageSize := pageParams(c)

	result, err := h.orders.ListAll(c.Request.Context(), page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	order, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.OrderStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	identity := middleware.GetIdentity(c)
	order, err := h.orders.UpdateStatus(c.Request.Context(), identity.UserID, identity.IsStaff(), id, req.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
