package docs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var testInfo = Info{Title: "HomeSer API", Description: "Household services", Version: "1.0.0"}

func newDocumentedRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/health", ok)
	router.GET("/api/services", ok)
	router.GET("/api/services/:id", ok)
	router.POST("/api/services/:id/reviews", ok)
	router.PATCH("/api/admin/orders/:id/status", ok)
	router.PUT("/api/admin/orders/:id/status", ok)
	router.POST("/api/payments/ipn", ok)
	router.POST("/api/payments/ipn/", ok)
	router.POST("/api/auth/password-reset/confirm/", ok)

	handler, err := NewHandler(testInfo, "access_token", router.Routes)
	require.NoError(t, err)
	handler.RegisterRoutes(router)
	return router
}

func TestBuild(t *testing.T) {
	router := newDocumentedRouter(t)
	doc := Build(testInfo, router.Routes(), "access_token")

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, testInfo, doc.Info)
	assert.Equal(t, SecurityScheme{Type: "apiKey", In: "cookie", Name: "access_token"}, doc.Components.SecuritySchemes["cookieAuth"])

	assert.NotContains(t, doc.Paths, "/health")
	assert.NotContains(t, doc.Paths, "/api/schema")
	assert.NotContains(t, doc.Paths, "/api/payments/ipn/")

	tests := []struct {
		path   string
		method string
		id     string
		tag    string
		params []string
	}{
		{"/api/services", "get", "services_list", "Services", nil},
		{"/api/services/{id}", "get", "services_retrieve", "Services", []string{"id"}},
		{"/api/services/{id}/reviews", "post", "services_reviews_create", "Services", []string{"id"}},
		{"/api/admin/orders/{id}/status", "patch", "admin_orders_status_partial_update", "Admin", []string{"id"}},
		{"/api/admin/orders/{id}/status", "put", "admin_orders_status_update", "Admin", []string{"id"}},
		{"/api/payments/ipn", "post", "payments_ipn_create", "Payments", nil},
		{"/api/auth/password-reset/confirm", "post", "auth_password_reset_confirm_create", "Auth", nil},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			require.Contains(t, doc.Paths, tt.path)
			op := doc.Paths[tt.path][tt.method]
			require.NotNil(t, op)
			assert.Equal(t, tt.id, op.OperationID)
			assert.Equal(t, []string{tt.tag}, op.Tags)

			var names []string
			for _, p := range op.Parameters {
				assert.Equal(t, "path", p.In)
				assert.True(t, p.Required)
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.params, names)
		})
	}

	var tagNames []string
	for _, tag := range doc.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	assert.Equal(t, []string{"Admin", "Auth", "Payments", "Services"}, tagNames)
}

func TestHandler(t *testing.T) {
	router := newDocumentedRouter(t)

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	t.Run("yaml by default", func(t *testing.T) {
		w := get("/api/schema/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/vnd.oai.openapi")

		var doc map[string]interface{}
		require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "3.0.3", doc["openapi"])
		assert.Contains(t, doc["paths"], "/api/services/{id}")
	})

	t.Run("json on request", func(t *testing.T) {
		w := get("/api/schema/?format=json")
		require.Equal(t, http.StatusOK, w.Code)

		var doc Document
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, "HomeSer API", doc.Info.Title)
		assert.Contains(t, doc.Paths, "/api/payments/ipn")
	})

	t.Run("swagger ui", func(t *testing.T) {
		w := get("/api/schema/swagger-ui/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, w.Body.String(), "swagger-ui-bundle.js")
		assert.Contains(t, w.Body.String(), "<title>HomeSer API</title>")
	})

	t.Run("redoc", func(t *testing.T) {
		w := get("/api/schema/redoc/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "redoc.standalone.js")
		assert.Contains(t, w.Body.String(), "/api/schema/?format=json")
	})
}
