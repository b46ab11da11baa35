package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

type CatalogHandler struct {
	logger  *logrus.Logger
	catalog services.CatalogServiceInterface
}

func NewCatalogHandler(logger *logrus.Logger, catalog services.CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{logger: logger, catalog: catalog}
}

// filterFromQuery reads the listing query. Malformed numbers are rejected
// earlier by the query validator, so parse failures just drop the filter.
func filterFromQuery(c *gin.Context) models.ServiceFilter {
	page, pageSize := pageParams(c)
	f := models.ServiceFilter{
		Search:   c.Query("search"),
		Ordering: c.Query("ordering"),
		Page:     page,
		PageSize: pageSize,
	}

	if v, err := strconv.ParseInt(c.Query("category"), 10, 64); err == nil {
		f.CategoryID = &v
	}
	if v, err := strconv.ParseFloat(c.Query("min_price"), 64); err == nil {
		f.MinPrice = &v
	}
	if v, err := strconv.ParseFloat(c.Query("max_price"), 64); err == nil {
		f.MaxPrice = &v
	}
	return f
}

func (h *CatalogHandler) listServices(c *gin.Context, f models.ServiceFilter) {
	result, err := h.catalog.ListServices(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListServices is the public listing; only active services are shown.
func (h *CatalogHandler) ListServices(c *gin.Context) {
	f := filterFromQuery(c)
	f.ActiveOnly = true
	h.listServices(c, f)
}

func (h *CatalogHandler) GetService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	service, err := h.catalog.GetActiveService(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (h *CatalogHandler) GetCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	category, err := h.catalog.GetCategory(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var req models.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.catalog.CreateCategory(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	category, err := h.catalog.UpdateCategory(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteCategory(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Staff endpoints see every service, active or not.

func (h *CatalogHandler) StaffListServices(c *gin.Context) {
	h.listServices(c, filterFromQuery(c))
}

func (h *CatalogHandler) StaffGetService(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	service, err := h.catalog.GetService(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (h *CatalogHandler) CreateService(c *gin.Context) {
	var req models.ServiceRequest
	if !bindJSON(c, &req) {
		return
	}

	service, err := h.catalog.CreateService(c.Request.Context(), middleware.GetIdentity(c).UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, service)
}

func (h *CatalogHandler) StaffUpdateService(c *gin.Context) {
	h.updateService(c, nil)
}

func (h *CatalogHandler) StaffDeleteService(c *gin.Context) {
	h.deleteService(c, nil)
}

// Provider endpoints are scoped to services the caller owns.

func (h *CatalogHandler) ProviderListServices(c *gin.Context) {
	f := filterFromQuery(c)
	owner := middleware.GetIdentity(c).UserID
	f.OwnerID = &owner
	h.listServices(c, f)
}

func (h *CatalogHandler) ProviderUpdateService(c *gin.Context) {
	owner := middleware.GetIdentity(c).UserID
	h.updateService(c, &owner)
}

func (h *CatalogHandler) ProviderDeleteService(c *gin.Context) {
	owner := middleware.GetIdentity(c).UserID
	h.deleteService(c, &owner)
}

func (h *CatalogHandler) updateService(c *gin.Context, owner *int64) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.ServiceRequest
	if !bindJSON(c, &req) {
		return
	}

	service, err := h.catalog.UpdateService(c.Request.Context(), id, owner, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, service)
}

func (h *CatalogHandler) deleteService(c *gin.Context, owner *int64) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteService(c.Request.Context(), id, owner); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
