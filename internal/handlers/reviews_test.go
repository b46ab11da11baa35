package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/pkg/models"
)

func newReviewRouter(svc *MockReviewService, identity auth.Identity) *gin.Engine {
	h := NewReviewHandler(testLogger(), svc)
	router := newTestRouter(identity)
	router.GET("/api/services/:id/reviews", h.ListForService)
	router.POST("/api/services/:id/reviews", h.Create)
	router.GET("/api/services/:id/rating", h.Rating)
	router.GET("/api/reviews/user", h.ListMine)
	router.DELETE("/api/reviews/:id", h.Delete)
	router.GET("/api/admin/reviews", h.AdminList)
	router.GET("/api/admin/reviews/:id", h.AdminGet)
	router.PUT("/api/admin/reviews/:id", h.AdminUpdate)
	router.PATCH("/api/admin/reviews/:id", h.AdminUpdate)
	router.DELETE("/api/admin/reviews/:id", h.AdminDelete)
	return router
}

func TestReviewHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           map[string]any
		mockSetup      func(*MockReviewService)
		expectedStatus int
	}{
		{
			name: "created",
			body: map[string]any{"rating": 5, "text": "Fantastic and punctual work"},
			mockSetup: func(m *MockReviewService) {
				m.On("Create", mock.Anything, int64(7), int64(3), &models.ReviewRequest{Rating: 5, Text: "Fantastic and punctual work"}).
					Return(&models.Review{ID: 1, Rating: 5}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "second review",
			body: map[string]any{"rating": 4, "text": "Changed my mind a bit"},
			mockSetup: func(m *MockReviewService) {
				m.On("Create", mock.Anything, int64(7), int64(3), mock.Anything).Return(nil, services.ErrConflict)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "rating out of range",
			body:           map[string]any{"rating": 6, "text": "Way better than expected"},
			mockSetup:      func(*MockReviewService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "text too short",
			body:           map[string]any{"rating": 3, "text": "ok"},
			mockSetup:      func(*MockReviewService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockReviewService{}
			tt.mockSetup(svc)
			w := doJSON(newReviewRouter(svc, customer()), http.MethodPost, "/api/services/3/reviews", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestReviewHandler_Reads(t *testing.T) {
	svc := &MockReviewService{}
	svc.On("ListForService", mock.Anything, int64(3), 1, 20).Return(models.NewPage([]models.Review{}, 0, 1, 20), nil)
	svc.On("Summary", mock.Anything, int64(3)).Return(&models.RatingSummary{ServiceID: 3, Count: 2, Average: 4.5}, nil)
	svc.On("ListForUser", mock.Anything, int64(7)).Return(nil, nil)
	router := newReviewRouter(svc, customer())

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/api/services/3/reviews", nil).Code)

	w := doJSON(router, http.MethodGet, "/api/services/3/rating", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"average":4.5`)

	w = doJSON(router, http.MethodGet, "/api/reviews/user", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestReviewHandler_Delete(t *testing.T) {
	svc := &MockReviewService{}
	svc.On("Delete", mock.Anything, int64(8), int64(7), false).Return(services.ErrNotFound)
	svc.On("Delete", mock.Anything, int64(8), int64(1), true).Return(nil)

	assert.Equal(t, http.StatusNotFound, doJSON(newReviewRouter(svc, customer()), http.MethodDelete, "/api/reviews/8", nil).Code)
	assert.Equal(t, http.StatusNoContent, doJSON(newReviewRouter(svc, staff()), http.MethodDelete, "/api/reviews/8", nil).Code)
	svc.AssertExpectations(t)
}

func TestReviewHandler_AdminList(t *testing.T) {
	serviceID, rating := int64(3), 1
	svc := &MockReviewService{}
	svc.On("ListAll", mock.Anything, models.ReviewFilter{ServiceID: &serviceID, Rating: &rating, Page: 2, PageSize: 5}).
		Return(models.NewPage([]models.Review{{ID: 4, ServiceID: 3, Rating: 1}}, 6, 2, 5), nil)
	svc.On("ListAll", mock.Anything, models.ReviewFilter{Page: 1, PageSize: models.DefaultPageSize}).
		Return(models.NewPage([]models.Review{}, 0, 1, models.DefaultPageSize), nil)
	router := newReviewRouter(svc, staff())

	w := doJSON(router, http.MethodGet, "/api/admin/reviews?service_id=3&rating=1&page=2&page_size=5", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":6`)

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/api/admin/reviews", nil).Code)
	svc.AssertExpectations(t)
}

func TestReviewHandler_AdminGet(t *testing.T) {
	svc := &MockReviewService{}
	svc.On("Get", mock.Anything, int64(4)).Return(&models.Review{ID: 4, Rating: 2}, nil)
	svc.On("Get", mock.Anything, int64(5)).Return(nil, services.ErrNotFound)
	router := newReviewRouter(svc, staff())

	w := doJSON(router, http.MethodGet, "/api/admin/reviews/4", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"rating":2`)
	assert.Equal(t, http.StatusNotFound, doJSON(router, http.MethodGet, "/api/admin/reviews/5", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodGet, "/api/admin/reviews/abc", nil).Code)
	svc.AssertExpectations(t)
}

func TestReviewHandler_AdminUpdate(t *testing.T) {
	text := "Cleaned up wording by moderator"
	rating := 3

	tests := []struct {
		name           string
		method         string
		body           any
		mockSetup      func(*MockReviewService)
		expectedStatus int
	}{
		{
			name:   "patch text",
			method: http.MethodPatch,
			body:   map[string]any{"text": text},
			mockSetup: func(m *MockReviewService) {
				m.On("Update", mock.Anything, int64(4), &models.ReviewUpdateRequest{Text: &text}).
					Return(&models.Review{ID: 4, Text: text}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "put both",
			method: http.MethodPut,
			body:   map[string]any{"rating": 3, "text": text},
			mockSetup: func(m *MockReviewService) {
				m.On("Update", mock.Anything, int64(4), &models.ReviewUpdateRequest{Rating: &rating, Text: &text}).
					Return(&models.Review{ID: 4, Rating: 3, Text: text}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "missing review",
			method: http.MethodPatch,
			body:   map[string]any{"rating": 3},
			mockSetup: func(m *MockReviewService) {
				m.On("Update", mock.Anything, int64(4), mock.Anything).Return(nil, services.ErrNotFound)
			},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:   "empty edit",
			method: http.MethodPatch,
			body:   map[string]any{},
			mockSetup: func(m *MockReviewService) {
				m.On("Update", mock.Anything, int64(4), mock.Anything).Return(nil, services.ErrInvalidInput)
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "rating out of range",
			method:         http.MethodPatch,
			body:           map[string]any{"rating": 9},
			mockSetup:      func(*MockReviewService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "malformed body",
			method:         http.MethodPut,
			body:           "{",
			mockSetup:      func(*MockReviewService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockReviewService{}
			tt.mockSetup(svc)
			w := doJSON(newReviewRouter(svc, staff()), tt.method, "/api/admin/reviews/4", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestReviewHandler_AdminDelete(t *testing.T) {
	svc := &MockReviewService{}
	svc.On("Delete", mock.Anything, int64(8), int64(1), true).Return(nil)

	assert.Equal(t, http.StatusNoContent, doJSON(newReviewRouter(svc, staff()), http.MethodDelete, "/api/admin/reviews/8", nil).Code)
	svc.AssertExpectations(t)
}
