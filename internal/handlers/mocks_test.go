package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/usage"
	"github.com/temcen/homeser/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

type fixedResolver struct {
	identity auth.Identity
}

func (r fixedResolver) Resolve(context.Context, string) (auth.Identity, error) {
	if r.identity.IsAnonymous() {
		return auth.Anonymous, auth.ErrNoToken
	}
	return r.identity, nil
}

func customer() auth.Identity {
	return auth.Identity{UserID: 7, User: &models.User{ID: 7, Email: "jane@example.com", Username: "jane", IsActive: true}}
}

func staff() auth.Identity {
	return auth.Identity{UserID: 1, User: &models.User{ID: 1, Email: "admin@example.com", Username: "admin", IsStaff: true, IsActive: true}}
}

// newTestRouter runs every request as the given identity.
func newTestRouter(identity auth.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.Authenticate(fixedResolver{identity: identity}, testLogger()))
	return router
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, _ := json.Marshal(b)
			reader = bytes.NewBuffer(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(body []byte) string {
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	return envelope.Error.Code
}

type MockAuthService struct{ mock.Mock }

func (m *MockAuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, models.TokenPair, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*models.User)
	return user, args.Get(1).(models.TokenPair), args.Error(2)
}

func (m *MockAuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.User, models.TokenPair, error) {
	args := m.Called(ctx, req)
	user, _ := args.Get(0).(*models.User)
	return user, args.Get(1).(models.TokenPair), args.Error(2)
}

func (m *MockAuthService) Refresh(ctx context.Context, token string) (*models.User, models.TokenPair, error) {
	args := m.Called(ctx, token)
	user, _ := args.Get(0).(*models.User)
	return user, args.Get(1).(models.TokenPair), args.Error(2)
}

func (m *MockAuthService) Logout(ctx context.Context, token string) {
	m.Called(ctx, token)
}

func (m *MockAuthService) AccessTTL() time.Duration  { return time.Hour }
func (m *MockAuthService) RefreshTTL() time.Duration { return 7 * 24 * time.Hour }

type MockPasswordResetService struct{ mock.Mock }

func (m *MockPasswordResetService) Request(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockPasswordResetService) Validate(ctx context.Context, token string) (*models.PasswordResetStatus, error) {
	args := m.Called(ctx, token)
	status, _ := args.Get(0).(*models.PasswordResetStatus)
	return status, args.Error(1)
}

func (m *MockPasswordResetService) Confirm(ctx context.Context, req *models.PasswordResetConfirmRequest) error {
	return m.Called(ctx, req).Error(0)
}

type MockUserService struct{ mock.Mock }

func (m *MockUserService) GetByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, id int64, req *models.ProfileUpdateRequest) (*models.User, error) {
	args := m.Called(ctx, id, req)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

func (m *MockUserService) List(ctx context.Context, page, pageSize int) (models.Page[models.User], error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).(models.Page[models.User]), args.Error(1)
}

func (m *MockUserService) Promote(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

type MockCatalogService struct{ mock.Mock }

func (m *MockCatalogService) ListCategories(ctx context.Context) ([]models.Category, error) {
	args := m.Called(ctx)
	categories, _ := args.Get(0).([]models.Category)
	return categories, args.Error(1)
}

func (m *MockCatalogService) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	args := m.Called(ctx, id)
	category, _ := args.Get(0).(*models.Category)
	return category, args.Error(1)
}

func (m *MockCatalogService) CreateCategory(ctx context.Context, req *models.CategoryRequest) (*models.Category, error) {
	args := m.Called(ctx, req)
	category, _ := args.Get(0).(*models.Category)
	return category, args.Error(1)
}

func (m *MockCatalogService) UpdateCategory(ctx context.Context, id int64, req *models.CategoryRequest) (*models.Category, error) {
	args := m.Called(ctx, id, req)
	category, _ := args.Get(0).(*models.Category)
	return category, args.Error(1)
}

func (m *MockCatalogService) DeleteCategory(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCatalogService) ListServices(ctx context.Context, f models.ServiceFilter) (models.Page[models.Service], error) {
	args := m.Called(ctx, f)
	return args.Get(0).(models.Page[models.Service]), args.Error(1)
}

func (m *MockCatalogService) GetService(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	service, _ := args.Get(0).(*models.Service)
	return service, args.Error(1)
}

func (m *MockCatalogService) GetActiveService(ctx context.Context, id int64) (*models.Service, error) {
	args := m.Called(ctx, id)
	service, _ := args.Get(0).(*models.Service)
	return service, args.Error(1)
}

func (m *MockCatalogService) CreateService(ctx context.Context, ownerID int64, req *models.ServiceRequest) (*models.Service, error) {
	args := m.Called(ctx, ownerID, req)
	service, _ := args.Get(0).(*models.Service)
	return service, args.Error(1)
}

func (m *MockCatalogService) UpdateService(ctx context.Context, id int64, ownerID *int64, req *models.ServiceRequest) (*models.Service, error) {
	args := m.Called(ctx, id, ownerID, req)
	service, _ := args.Get(0).(*models.Service)
	return service, args.Error(1)
}

func (m *MockCatalogService) DeleteService(ctx context.Context, id int64, ownerID *int64) error {
	return m.Called(ctx, id, ownerID).Error(0)
}

type MockCartService struct{ mock.Mock }

func (m *MockCartService) Get(ctx context.Context, userID int64) (*models.Cart, error) {
	args := m.Called(ctx, userID)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *MockCartService) Add(ctx context.Context, userID, serviceID int64, quantity int) (*models.Cart, error) {
	args := m.Called(ctx, userID, serviceID, quantity)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *MockCartService) Remove(ctx context.Context, userID, serviceID int64) (*models.Cart, error) {
	args := m.Called(ctx, userID, serviceID)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, userID, serviceID int64, quantity int) (*models.Cart, error) {
	args := m.Called(ctx, userID, serviceID, quantity)
	cart, _ := args.Get(0).(*models.Cart)
	return cart, args.Error(1)
}

type MockOrderService struct{ mock.Mock }

func (m *MockOrderService) Checkout(ctx context.Context, userID int64, email string, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	args := m.Called(ctx, userID, email, req)
	resp, _ := args.Get(0).(*models.CheckoutResponse)
	return resp, args.Error(1)
}

func (m *MockOrderService) ListForUser(ctx context.Context, userID int64, page, pageSize int) (models.Page[models.Order], error) {
	args := m.Called(ctx, userID, page, pageSize)
	return args.Get(0).(models.Page[models.Order]), args.Error(1)
}

func (m *MockOrderService) GetForUser(ctx context.Context, userID, id int64) (*models.Order, error) {
	args := m.Called(ctx, userID, id)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *MockOrderService) ListAll(ctx context.Context, page, pageSize int) (models.Page[models.Order], error) {
	args := m.Called(ctx, page, pageSize)
	return args.Get(0).(models.Page[models.Order]), args.Error(1)
}

func (m *MockOrderService) Get(ctx context.Context, id int64) (*models.Order, error) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, actor int64, isStaff bool, orderID int64, status string) (*models.Order, error) {
	args := m.Called(ctx, actor, isStaff, orderID, status)
	order, _ := args.Get(0).(*models.Order)
	return order, args.Error(1)
}

type MockPaymentService struct{ mock.Mock }

func (m *MockPaymentService) HandleIPN(ctx context.Context, valID, tranID string) (*models.IPNResult, error) {
	args := m.Called(ctx, valID, tranID)
	result, _ := args.Get(0).(*models.IPNResult)
	return result, args.Error(1)
}

func (m *MockPaymentService) Analytics(ctx context.Context, days int) (*models.PaymentAnalytics, error) {
	args := m.Called(ctx, days)
	analytics, _ := args.Get(0).(*models.PaymentAnalytics)
	return analytics, args.Error(1)
}

func (m *MockPaymentService) Refund(ctx context.Context, paymentID, actorID int64, req *models.RefundRequest) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, actorID, req)
	payment, _ := args.Get(0).(*models.Payment)
	return payment, args.Error(1)
}

func (m *MockPaymentService) Dispute(ctx context.Context, paymentID, userID int64, isStaff bool, reason string) (*models.Payment, error) {
	args := m.Called(ctx, paymentID, userID, isStaff, reason)
	payment, _ := args.Get(0).(*models.Payment)
	return payment, args.Error(1)
}

type MockReviewService struct{ mock.Mock }

func (m *MockReviewService) Create(ctx context.Context, userID, serviceID int64, req *models.ReviewRequest) (*models.Review, error) {
	args := m.Called(ctx, userID, serviceID, req)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *MockReviewService) ListForService(ctx context.Context, serviceID int64, page, pageSize int) (models.Page[models.Review], error) {
	args := m.Called(ctx, serviceID, page, pageSize)
	return args.Get(0).(models.Page[models.Review]), args.Error(1)
}

func (m *MockReviewService) ListForUser(ctx context.Context, userID int64) ([]models.Review, error) {
	args := m.Called(ctx, userID)
	reviews, _ := args.Get(0).([]models.Review)
	return reviews, args.Error(1)
}

func (m *MockReviewService) Delete(ctx context.Context, id, userID int64, isStaff bool) error {
	return m.Called(ctx, id, userID, isStaff).Error(0)
}

func (m *MockReviewService) Summary(ctx context.Context, serviceID int64) (*models.RatingSummary, error) {
	args := m.Called(ctx, serviceID)
	summary, _ := args.Get(0).(*models.RatingSummary)
	return summary, args.Error(1)
}

func (m *MockReviewService) ListAll(ctx context.Context, f models.ReviewFilter) (models.Page[models.Review], error) {
	args := m.Called(ctx, f)
	return args.Get(0).(models.Page[models.Review]), args.Error(1)
}

func (m *MockReviewService) Get(ctx context.Context, id int64) (*models.Review, error) {
	args := m.Called(ctx, id)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

func (m *MockReviewService) Update(ctx context.Context, id int64, req *models.ReviewUpdateRequest) (*models.Review, error) {
	args := m.Called(ctx, id, req)
	review, _ := args.Get(0).(*models.Review)
	return review, args.Error(1)
}

type MockSettingsService struct{ mock.Mock }

func (m *MockSettingsService) Get(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	settings, _ := args.Get(0).(map[string]string)
	return settings, args.Error(1)
}

func (m *MockSettingsService) Update(ctx context.Context, settings map[string]string) (map[string]string, error) {
	args := m.Called(ctx, settings)
	updated, _ := args.Get(0).(map[string]string)
	return updated, args.Error(1)
}

func (m *MockSettingsService) PublicConfig(ctx context.Context) (*models.PublicConfig, error) {
	args := m.Called(ctx)
	cfg, _ := args.Get(0).(*models.PublicConfig)
	return cfg, args.Error(1)
}

func (m *MockSettingsService) ClearCache(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type MockUsageReader struct{ mock.Mock }

func (m *MockUsageReader) Latest(ctx context.Context) (usage.Snapshot, error) {
	args := m.Called(ctx)
	return args.Get(0).(usage.Snapshot), args.Error(1)
}
