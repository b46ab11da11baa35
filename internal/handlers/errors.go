package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/internal/usage"
	"github.com/temcen/homeser/pkg/models"
)

var validate = validator.New()

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{services.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{auth.ErrUserNotFound, http.StatusNotFound, "NOT_FOUND"},
	{usage.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{services.ErrConflict, http.StatusConflict, "CONFLICT"},
	{services.ErrUnauthorized, http.StatusUnauthorized, "AUTHENTICATION_FAILED"},
	{services.ErrForbidden, http.StatusForbidden, "PERMISSION_DENIED"},
	{services.ErrEmptyCart, http.StatusBadRequest, "EMPTY_CART"},
	{services.ErrInvalidInput, http.StatusBadRequest, "INVALID_REQUEST"},
	{services.ErrPaymentRejected, http.StatusBadRequest, "PAYMENT_REJECTED"},
	{services.ErrRateLimited, http.StatusTooManyRequests, "THROTTLED"},
	{services.ErrGateway, http.StatusBadGateway, "PAYMENT_GATEWAY_ERROR"},
}

// respondError maps service errors onto the error envelope. Unmapped errors
// are logged and reported as 500 without detail.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, gin.H{"error": gin.H{"code": m.code, "message": err.Error()}})
			return
		}
	}

	logger.WithError(err).WithFields(logrus.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "Internal server error"},
	})
}

// bindJSON decodes and validates the body, writing a 400 on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid request format",
				"details": err.Error(),
			},
		})
		return false
	}
	if err := validate.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": validationDetails(err),
			},
		})
		return false
	}
	return true
}

func validationDetails(err error) map[string]string {
	details := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return details
	}
	details["body"] = err.Error()
	return details
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "INVALID_ID", "message": "Invalid " + name},
		})
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(models.DefaultPageSize)))
	return page, pageSize
}
