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

type ReviewHandler struct {
	logger  *logrus.Logger
	reviews services.ReviewServiceInterface
}

func NewReviewHandler(logger *logrus.Logger, reviews services.ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{logger: logger, reviews: reviews}
}

func (h *ReviewHandler) ListForService(c *gin.Context) {
	serviceID, ok := idParam(c, "id")
	if !ok {
		return
	}
	page, pageSize := pageParams(c)

	result, err := h.reviews.ListForService(c.Request.Context(), serviceID, page, pageSize)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReviewHandler) Create(c *gin.Context) {
	serviceID, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.ReviewRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.reviews.Create(c.Request.Context(), middleware.GetIdentity(c).UserID, serviceID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h *ReviewHandler) Rating(c *gin.Context) {
	serviceID, ok := idParam(c, "id")
	if !ok {
		return
	}

	summary, err := h.reviews.Summary(c.Request.Context(), serviceID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReviewHandler) ListMine(c *gin.Context) {
	reviews, err := h.reviews.ListForUser(c.Request.Context(), middleware.GetIdentity(c).UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if reviews == nil {
		reviews = []models.Review{}
	}
	c.JSON(http.StatusOK, reviews)
}

func (h *ReviewHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	identity := middleware.GetIdentity(c)
	if err := h.reviews.Delete(c.Request.Context(), id, identity.UserID, identity.IsStaff()); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AdminList lists every review, optionally narrowed by service_id, user_id
// and rating.
func (h *ReviewHandler) AdminList(c *gin.Context) {
	page, pageSize := pageParams(c)
	f := models.ReviewFilter{Page: page, PageSize: pageSize}
	if v, err := strconv.ParseInt(c.Query("service_id"), 10, 64); err == nil {
		f.ServiceID = &v
	}
	if v, err := strconv.ParseInt(c.Query("user_id"), 10, 64); err == nil {
		f.UserID = &v
	}
	if v, err := strconv.Atoi(c.Query("rating")); err == nil {
		f.Rating = &v
	}

	result, err := h.reviews.ListAll(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *ReviewHandler) AdminGet(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	review, err := h.reviews.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// AdminUpdate serves both PUT and PATCH; absent fields are left unchanged.
func (h *ReviewHandler) AdminUpdate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req models.ReviewUpdateRequest
	if !bindJSON(c, &req) {
		return
	}

	review, err := h.reviews.Update(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h *ReviewHandler) AdminDelete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.reviews.Delete(c.Request.Context(), id, middleware.GetIdentity(c).UserID, true); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
