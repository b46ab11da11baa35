package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/internal/usage"
	"github.com/temcen/homeser/internal/validation"
	"github.com/temcen/homeser/pkg/models"
)

func newSettingsRouter(t *testing.T, svc *MockSettingsService, identity auth.Identity) *gin.Engine {
	t.Helper()
	schemas, err := validation.NewSchemaValidator()
	require.NoError(t, err)
	vm := middleware.NewValidationMiddleware(schemas)

	h := NewSettingsHandler(testLogger(), svc)
	router := newTestRouter(identity)
	router.GET("/api/config/public", h.PublicConfig)
	staffOnly := router.Group("/api/settings", middleware.RequireStaff())
	staffOnly.GET("", h.Get)
	staffOnly.PUT("", vm.ValidateBody(validation.SchemaSettingsUpdate), h.Update)
	staffOnly.POST("/cache/clear", h.ClearCache)
	return router
}

func TestSettingsHandler(t *testing.T) {
	t.Run("public config needs no session", func(t *testing.T) {
		svc := &MockSettingsService{}
		svc.On("PublicConfig", mock.Anything).Return(&models.PublicConfig{FrontendURL: "https://app.example.com"}, nil)

		w := doJSON(newSettingsRouter(t, svc, auth.Anonymous), http.MethodGet, "/api/config/public", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"FRONTEND_URL":"https://app.example.com"`)
	})

	t.Run("anonymous settings read", func(t *testing.T) {
		w := doJSON(newSettingsRouter(t, &MockSettingsService{}, auth.Anonymous), http.MethodGet, "/api/settings", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("update", func(t *testing.T) {
		svc := &MockSettingsService{}
		svc.On("Update", mock.Anything, map[string]string{"site_name": "HomeSer"}).
			Return(map[string]string{"site_name": "HomeSer", "support_email": "help@example.com"}, nil)

		w := doJSON(newSettingsRouter(t, svc, staff()), http.MethodPut, "/api/settings",
			map[string]any{"settings": map[string]string{"site_name": "HomeSer"}})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "support_email")
		svc.AssertExpectations(t)
	})

	t.Run("update with a bad key fails the schema", func(t *testing.T) {
		svc := &MockSettingsService{}
		w := doJSON(newSettingsRouter(t, svc, staff()), http.MethodPut, "/api/settings",
			map[string]any{"settings": map[string]string{"Bad Key": "x"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("cache clear", func(t *testing.T) {
		svc := &MockSettingsService{}
		svc.On("ClearCache", mock.Anything).Return(3, nil)

		w := doJSON(newSettingsRouter(t, svc, staff()), http.MethodPost, "/api/settings/cache/clear", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"deleted":3`)
	})
}

func TestUsageHandler_Latest(t *testing.T) {
	snap, err := usage.NewSnapshot(usage.Counters{
		VercelInvocations: 850000,
		SupabaseMAU:       100,
		RedisMemory:       10,
		CloudinaryCredits: 1,
	}, usage.DefaultLimits, time.Unix(1700000000, 0))
	require.NoError(t, err)

	t.Run("stored snapshot", func(t *testing.T) {
		reader := &MockUsageReader{}
		reader.On("Latest", mock.Anything).Return(snap, nil)

		router := newTestRouter(staff())
		router.GET("/api/admin/usage", NewUsageHandler(testLogger(), reader).Latest)

		w := doJSON(router, http.MethodGet, "/api/admin/usage", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"within_limits":true`)
		assert.Contains(t, w.Body.String(), `"critical_services":["vercel"]`)
	})

	t.Run("expired snapshot", func(t *testing.T) {
		reader := &MockUsageReader{}
		reader.On("Latest", mock.Anything).Return(usage.Snapshot{}, usage.ErrNotFound)

		router := newTestRouter(staff())
		router.GET("/api/admin/usage", NewUsageHandler(testLogger(), reader).Latest)

		assert.Equal(t, http.StatusNotFound, doJSON(router, http.MethodGet, "/api/admin/usage", nil).Code)
	})
}

type stubHealth struct{ status string }

func (s stubHealth) CheckHealth(context.Context) *services.HealthStatus {
	return &services.HealthStatus{Status: s.status, Timestamp: time.Now(), Services: map[string]string{}}
}

func TestHealthHandler_Check(t *testing.T) {
	for status, code := range map[string]int{
		"healthy":   http.StatusOK,
		"degraded":  http.StatusOK,
		"unhealthy": http.StatusServiceUnavailable,
	} {
		router := newTestRouter(auth.Anonymous)
		router.GET("/health", NewHealthHandler(testLogger(), stubHealth{status: status}).Check)

		assert.Equal(t, code, doJSON(router, http.MethodGet, "/health", nil).Code, status)
	}
}
