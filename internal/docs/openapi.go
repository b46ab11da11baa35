package docs

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	openAPIVersion = "3.0.3"
	apiPrefix      = "/api/"
	schemaPrefix   = "/api/schema"
	cookieAuth     = "cookieAuth"
)

// Info is the document header.
type Info struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version" yaml:"version"`
}

type Document struct {
	OpenAPI    string                `json:"openapi" yaml:"openapi"`
	Info       Info                  `json:"info" yaml:"info"`
	Tags       []Tag                 `json:"tags,omitempty" yaml:"tags,omitempty"`
	Paths      map[string]PathItem   `json:"paths" yaml:"paths"`
	Components Components            `json:"components" yaml:"components"`
	Security   []map[string][]string `json:"security,omitempty" yaml:"security,omitempty"`
}

type Tag struct {
	Name string `json:"name" yaml:"name"`
}

// PathItem maps a lower-case HTTP method to its operation.
type PathItem map[string]*Operation

type Operation struct {
	OperationID string              `json:"operationId" yaml:"operationId"`
	Tags        []string            `json:"tags,omitempty" yaml:"tags,omitempty"`
	Parameters  []Parameter         `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`
}

type Parameter struct {
	Name     string `json:"name" yaml:"name"`
	In       string `json:"in" yaml:"in"`
	Required bool   `json:"required" yaml:"required"`
	Schema   Schema `json:"schema" yaml:"schema"`
}

type Schema struct {
	Type string `json:"type" yaml:"type"`
}

type Response struct {
	Description string `json:"description" yaml:"description"`
}

type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes" yaml:"securitySchemes"`
}

type SecurityScheme struct {
	Type string `json:"type" yaml:"type"`
	In   string `json:"in" yaml:"in"`
	Name string `json:"name" yaml:"name"`
}

var actionSuffix = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "partial_update",
	http.MethodDelete: "destroy",
}

// Build describes every /api route except the schema endpoints themselves.
// Paths registered with and without a trailing slash collapse into one entry.
func Build(info Info, routes gin.RoutesInfo, cookieName string) *Document {
	doc := &Document{
		OpenAPI: openAPIVersion,
		Info:    info,
		Paths:   make(map[string]PathItem),
		Components: Components{
			SecuritySchemes: map[string]SecurityScheme{
				cookieAuth: {Type: "apiKey", In: "cookie", Name: cookieName},
			},
		},
		// Authentication is optional at the document level; anonymous
		// callers reach the public catalog.
		Security: []map[string][]string{{cookieAuth: {}}, {}},
	}

	title := cases.Title(language.English)
	tags := make(map[string]bool)
	seenIDs := make(map[string]int)

	sorted := append(gin.RoutesInfo(nil), routes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Path != sorted[j].Path {
			return sorted[i].Path < sorted[j].Path
		}
		return sorted[i].Method < sorted[j].Method
	})

	for _, route := range sorted {
		if !strings.HasPrefix(route.Path, apiPrefix) || strings.HasPrefix(route.Path, schemaPrefix) {
			continue
		}

		path, params := convertPath(route.Path)
		item, ok := doc.Paths[path]
		if !ok {
			item = make(PathItem)
			doc.Paths[path] = item
		}
		method := strings.ToLower(route.Method)
		if _, dup := item[method]; dup {
			continue
		}

		segments := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
		tag := title.String(segments[0])
		tags[tag] = true

		id := operationID(route.Method, segments)
		seenIDs[id]++
		if n := seenIDs[id]; n > 1 {
			id = fmt.Sprintf("%s_%d", id, n)
		}

		op := &Operation{
			OperationID: id,
			Tags:        []string{tag},
			Responses:   map[string]Response{"200": {Description: "Successful response"}},
		}
		for _, name := range params {
			op.Parameters = append(op.Parameters, Parameter{
				Name:     name,
				In:       "path",
				Required: true,
				Schema:   Schema{Type: "string"},
			})
		}
		item[method] = op
	}

	for name := range tags {
		doc.Tags = append(doc.Tags, Tag{Name: name})
	}
	sort.Slice(doc.Tags, func(i, j int) bool { return doc.Tags[i].Name < doc.Tags[j].Name })

	return doc
}

// convertPath rewrites gin's :name and *name segments into OpenAPI {name}
// templates and drops any trailing slash.
func convertPath(path string) (string, []string) {
	var params []string
	segments := strings.Split(strings.TrimSuffix(path, "/"), "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if segment[0] == ':' || segment[0] == '*' {
			name := segment[1:]
			params = append(params, name)
			segments[i] = "{" + name + "}"
		}
	}
	return strings.Join(segments, "/"), params
}

// operationID follows the list/retrieve/create naming used by REST
// viewsets, e.g. GET /api/services/{id} becomes services_retrieve.
func operationID(method string, segments []string) string {
	parts := make([]string, 0, len(segments)+1)
	for _, segment := range segments {
		if strings.HasPrefix(segment, "{") {
			continue
		}
		parts = append(parts, strings.ReplaceAll(segment, "-", "_"))
	}

	suffix, ok := actionSuffix[method]
	if !ok {
		suffix = "list"
		if last := segments[len(segments)-1]; strings.HasPrefix(last, "{") {
			suffix = "retrieve"
		}
	}
	return strings.Join(append(parts, suffix), "_")
}
