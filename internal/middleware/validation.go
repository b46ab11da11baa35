package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/temcen/homeser/internal/validation"
)

const validatedBodyKey = "validatedBody"

type ValidationMiddleware struct {
	validator *validation.SchemaValidator
}

func NewValidationMiddleware(validator *validation.SchemaValidator) *ValidationMiddleware {
	return &ValidationMiddleware{validator: validator}
}

// ValidateBody checks a JSON body against the named schema and restores it
// for the handler.
func (vm *ValidationMiddleware) ValidateBody(schemaName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodDelete {
			c.Next()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			sendValidationError(c, "BODY_READ_ERROR", "Failed to read request body", nil)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		if len(bodyBytes) == 0 {
			sendValidationError(c, "EMPTY_BODY", "Request body is required", nil)
			return
		}

		result := vm.validator.Validate(schemaName, bodyBytes)
		if !result.Valid {
			sendValidationError(c, "VALIDATION_ERROR", "Request validation failed", gin.H{
				"fieldErrors": result.FieldErrors(),
			})
			return
		}

		c.Set(validatedBodyKey, bodyBytes)
		c.Next()
	}
}

// ValidateQueryParams rejects malformed pagination, price filters and numeric ids.
func (vm *ValidationMiddleware) ValidateQueryParams() gin.HandlerFunc {
	return func(c *gin.Context) {
		fieldErrors := map[string][]string{}

		if v := c.Query("page"); v != "" && !isIntInRange(v, 1, 1<<31-1) {
			fieldErrors["page"] = append(fieldErrors["page"], "Page must be a positive integer")
		}
		if v := c.Query("page_size"); v != "" && !isIntInRange(v, 1, 100) {
			fieldErrors["page_size"] = append(fieldErrors["page_size"], "Page size must be an integer between 1 and 100")
		}
		for _, name := range []string{"min_price", "max_price"} {
			if v := c.Query(name); v != "" {
				if f, err := strconv.ParseFloat(v, 64); err != nil || f < 0 {
					fieldErrors[name] = append(fieldErrors[name], "Price must be a non-negative number")
				}
			}
		}
		for _, name := range []string{"category", "service_id", "user_id"} {
			if v := c.Query(name); v != "" && !isIntInRange(v, 1, 1<<62) {
				fieldErrors[name] = append(fieldErrors[name], "Must be a positive integer id")
			}
		}
		if v := c.Query("rating"); v != "" && !isIntInRange(v, 1, 5) {
			fieldErrors["rating"] = append(fieldErrors["rating"], "Rating must be an integer between 1 and 5")
		}
		if v := c.Param("id"); v != "" && !isIntInRange(v, 1, 1<<62) {
			fieldErrors["id"] = append(fieldErrors["id"], "ID must be a positive integer")
		}

		if len(fieldErrors) > 0 {
			sendValidationError(c, "VALIDATION_ERROR", "Request validation failed", gin.H{"fieldErrors": fieldErrors})
			return
		}
		c.Next()
	}
}

func isIntInRange(value string, min, max int64) bool {
	n, err := strconv.ParseInt(value, 10, 64)
	return err == nil && n >= min && n <= max
}

func sendValidationError(c *gin.Context, code, message string, details gin.H) {
	body := gin.H{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": body})
}
