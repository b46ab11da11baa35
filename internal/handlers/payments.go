package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/internal/validation"
	"github.com/temcen/homeser/pkg/models"
)

type PaymentHandler struct {
	logger      *logrus.Logger
	payments    services.PaymentServiceInterface
	schemas     *validation.SchemaValidator
	frontendURL string
}

func NewPaymentHandler(logger *logrus.Logger, payments services.PaymentServiceInterface, schemas *validation.SchemaValidator, frontendURL string) *PaymentHandler {
	return &PaymentHandler{
		logger:      logger,
		payments:    payments,
		schemas:     schemas,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// IPN receives the gateway's server-to-server notification. The gateway
// posts a form; JSON is accepted for manual replays. The response is always
// 200 with the processing result so the gateway does not retry rejected
// notifications.
func (h *PaymentHandler) IPN(c *gin.Context) {
	var req models.IPNRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_REQUEST", "message": "Invalid IPN payload", "details": err.Error()},
		})
		return
	}

	if result := h.schemas.ValidateIPN(req); !result.Valid {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "IPN payload failed validation",
				"details": result.FieldErrors(),
			},
		})
		return
	}

	result, err := h.payments.HandleIPN(c.Request.Context(), req.ValID, req.TranID)
	if err != nil {
		h.logger.WithError(err).WithField("tran_id", req.TranID).Warn("IPN processing failed")
		c.JSON(http.StatusOK, models.IPNResult{Status: "error", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *PaymentHandler) Analytics(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_REQUEST", "message": "days must be a positive integer"},
		})
		return
	}

	analytics, err := h.payments.Analytics(c.Request.Context(), days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.RefundRequest
	if !bindJSON(c, &req) {
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), id, middleware.GetIdentity(c).UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Refund initiated", "payment": payment})
}

func (h *PaymentHandler) Dispute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.DisputeRequest
	if !bindJSON(c, &req) {
		return
	}

	identity := middleware.GetIdentity(c)
	payment, err := h.payments.Dispute(c.Request.Context(), id, identity.UserID, identity.IsStaff(), req.DisputeReason)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dispute recorded", "payment": payment})
}

// Callback returns the handler for the browser redirect the gateway issues
// after the customer leaves the payment page. Payment state is only ever
// changed by the IPN.
func (h *PaymentHandler) Callback(result string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tranID := c.PostForm("tran_id")
		if tranID == "" {
			tranID = c.Query("tran_id")
		}

		target := h.frontendURL + "/payment/" + result
		if tranID != "" {
			target += "?" + url.Values{"tran_id": {tranID}}.Encode()
		}
		c.Redirect(http.StatusSeeOther, target)
	}
}
