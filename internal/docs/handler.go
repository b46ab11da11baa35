package docs

import (
	"embed"
	"html/template"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.html
var templateFS embed.FS

const schemaJSONURL = "/api/schema/?format=json"

// Handler serves the OpenAPI document generated from the live route table
// along with Swagger UI and ReDoc pages that render it.
type Handler struct {
	info       Info
	cookieName string
	routes     func() gin.RoutesInfo
	pages      *template.Template

	once sync.Once
	doc  *Document
}

// NewHandler takes the route source rather than a snapshot so routes
// registered after the handler still appear in the document.
func NewHandler(info Info, cookieName string, routes func() gin.RoutesInfo) (*Handler, error) {
	pages, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		info:       info,
		cookieName: cookieName,
		routes:     routes,
		pages:      pages,
	}, nil
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	schema := router.Group(schemaPrefix)
	{
		schema.GET("/", h.Schema)
		schema.GET("/swagger-ui/", h.SwaggerUI)
		schema.GET("/redoc/", h.Redoc)
	}
}

func (h *Handler) document() *Document {
	h.once.Do(func() {
		h.doc = Build(h.info, h.routes(), h.cookieName)
	})
	return h.doc
}

// Schema answers YAML by default and JSON for ?format=json.
func (h *Handler) Schema(c *gin.Context) {
	doc := h.document()
	if c.Query("format") == "json" {
		c.JSON(http.StatusOK, doc)
		return
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "Failed to render schema"},
		})
		return
	}
	c.Data(http.StatusOK, "application/vnd.oai.openapi; charset=utf-8", out)
}

func (h *Handler) SwaggerUI(c *gin.Context) {
	h.render(c, "swagger-ui.html")
}

func (h *Handler) Redoc(c *gin.Context) {
	h.render(c, "redoc.html")
}

func (h *Handler) render(c *gin.Context, page string) {
	data := struct {
		Title     string
		SchemaURL string
	}{
		Title:     h.info.Title,
		SchemaURL: schemaJSONURL,
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := h.pages.ExecuteTemplate(c.Writer, page, data); err != nil {
		_ = c.Error(err)
	}
}
