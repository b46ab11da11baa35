package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/internal/validation"
	"github.com/temcen/homeser/pkg/models"
)

const testTranID = "homeser_0b6f3c1e-8a44-4f0e-9a57-3f0c2a1d9e11_a1b2c3d4"

func newPaymentRouter(t *testing.T, svc *MockPaymentService, identity auth.Identity) *gin.Engine {
	t.Helper()
	schemas, err := validation.NewSchemaValidator()
	require.NoError(t, err)

	h := NewPaymentHandler(testLogger(), svc, schemas, "https://app.example.com/")
	router := newTestRouter(identity)
	router.POST("/api/payments/ipn", h.IPN)
	router.GET("/api/payments/analytics", h.Analytics)
	router.POST("/api/payments/success", h.Callback("success"))
	router.POST("/api/payments/refund/:id", h.Refund)
	router.POST("/api/payments/dispute/:id", h.Dispute)
	return router
}

func postForm(router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPaymentHandler_IPN(t *testing.T) {
	t.Run("form notification is processed", func(t *testing.T) {
		svc := &MockPaymentService{}
		svc.On("HandleIPN", mock.Anything, "val-1", testTranID).
			Return(&models.IPNResult{Status: "success", Message: "Payment validated"}, nil)

		w := postForm(newPaymentRouter(t, svc, auth.Anonymous), "/api/payments/ipn", url.Values{
			"val_id": {"val-1"}, "tran_id": {testTranID}, "status": {"VALID"},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"success"`)
		svc.AssertExpectations(t)
	})

	t.Run("foreign transaction id fails the schema", func(t *testing.T) {
		svc := &MockPaymentService{}
		w := postForm(newPaymentRouter(t, svc, auth.Anonymous), "/api/payments/ipn", url.Values{
			"val_id": {"val-1"}, "tran_id": {"other_123"},
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_FAILED", errorCode(w.Body.Bytes()))
		svc.AssertNotCalled(t, "HandleIPN", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("processing errors still answer 200", func(t *testing.T) {
		svc := &MockPaymentService{}
		svc.On("HandleIPN", mock.Anything, "val-2", testTranID).Return(nil, services.ErrGateway)

		w := doJSON(newPaymentRouter(t, svc, auth.Anonymous), http.MethodPost, "/api/payments/ipn",
			map[string]string{"val_id": "val-2", "tran_id": testTranID})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"error"`)
	})
}

func TestPaymentHandler_Analytics(t *testing.T) {
	svc := &MockPaymentService{}
	svc.On("Analytics", mock.Anything, 30).Return(&models.PaymentAnalytics{Days: 30, TotalPayments: 4}, nil)
	svc.On("Analytics", mock.Anything, 7).Return(&models.PaymentAnalytics{Days: 7}, nil)
	router := newPaymentRouter(t, svc, staff())

	w := doJSON(router, http.MethodGet, "/api/payments/analytics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_payments":4`)

	assert.Equal(t, http.StatusOK, doJSON(router, http.MethodGet, "/api/payments/analytics?days=7", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(router, http.MethodGet, "/api/payments/analytics?days=-1", nil).Code)
	svc.AssertExpectations(t)
}

func TestPaymentHandler_Callback(t *testing.T) {
	w := postForm(newPaymentRouter(t, &MockPaymentService{}, auth.Anonymous), "/api/payments/success",
		url.Values{"tran_id": {testTranID}})

	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "https://app.example.com/payment/success?tran_id="+testTranID, w.Header().Get("Location"))
}

func TestPaymentHandler_Refund(t *testing.T) {
	amount := 250.5
	tests := []struct {
		name           string
		path           string
		body           any
		mockSetup      func(*MockPaymentService)
		expectedStatus int
	}{
		{
			name: "partial refund",
			path: "/api/payments/refund/3",
			body: map[string]any{"refund_amount": 250.5, "reason": "One visit cancelled"},
			mockSetup: func(m *MockPaymentService) {
				m.On("Refund", mock.Anything, int64(3), int64(1), &models.RefundRequest{RefundAmount: &amount, Reason: "One visit cancelled"}).
					Return(&models.Payment{ID: 3, Status: models.PaymentRefunded}, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "not completed",
			path: "/api/payments/refund/3",
			body: map[string]any{},
			mockSetup: func(m *MockPaymentService) {
				m.On("Refund", mock.Anything, int64(3), int64(1), mock.Anything).Return(nil, services.ErrConflict)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "negative amount",
			path:           "/api/payments/refund/3",
			body:           map[string]any{"refund_amount": -5},
			mockSetup:      func(*MockPaymentService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad id",
			path:           "/api/payments/refund/x",
			body:           map[string]any{},
			mockSetup:      func(*MockPaymentService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPaymentService{}
			tt.mockSetup(svc)
			w := doJSON(newPaymentRouter(t, svc, staff()), http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_Dispute(t *testing.T) {
	const reason = "Charged but the cleaner never came"

	t.Run("customer dispute", func(t *testing.T) {
		svc := &MockPaymentService{}
		svc.On("Dispute", mock.Anything, int64(3), int64(7), false, reason).
			Return(&models.Payment{ID: 3, Status: models.PaymentDisputed}, nil)

		w := doJSON(newPaymentRouter(t, svc, customer()), http.MethodPost, "/api/payments/dispute/3",
			map[string]any{"dispute_reason": reason})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"disputed"`)
		svc.AssertExpectations(t)
	})

	t.Run("staff dispute", func(t *testing.T) {
		svc := &MockPaymentService{}
		svc.On("Dispute", mock.Anything, int64(3), int64(1), true, reason).Return(&models.Payment{ID: 3}, nil)

		w := doJSON(newPaymentRouter(t, svc, staff()), http.MethodPost, "/api/payments/dispute/3",
			map[string]any{"dispute_reason": reason})
		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("reason required", func(t *testing.T) {
		svc := &MockPaymentService{}
		w := doJSON(newPaymentRouter(t, svc, customer()), http.MethodPost, "/api/payments/dispute/3", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "VALIDATION_FAILED")
		svc.AssertExpectations(t)
	})

	t.Run("foreign payment", func(t *testing.T) {
		svc := &MockPaymentService{}
		svc.On("Dispute", mock.Anything, int64(3), int64(7), false, reason).Return(nil, services.ErrNotFound)

		w := doJSON(newPaymentRouter(t, svc, customer()), http.MethodPost, "/api/payments/dispute/3",
			map[string]any{"dispute_reason": reason})
		assert.Equal(t, http.StatusNotFound, w.Code)
		svc.AssertExpectations(t)
	})
}
