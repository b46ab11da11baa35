package services

import (
	"context"
	"time"

	"github.com/temcen/homeser/internal/usage"
	"github.com/temcen/homeser/pkg/models"
)

// AuthServiceInterface is what the auth handlers need from AuthService.
type AuthServiceInterface interface {
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, models.TokenPair, error)
	Login(ctx context.Context, req *models.LoginRequest) (*models.User, models.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*models.User, models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string)
	AccessTTL() time.Duration
	RefreshTTL() time.Duration
}

type PasswordResetServiceInterface interface {
	Request(ctx context.Context, email string) error
	Validate(ctx context.Context, token string) (*models.PasswordResetStatus, error)
	Confirm(ctx context.Context, req *models.PasswordResetConfirmRequest) error
}

type UserServiceInterface interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateProfile(ctx context.Context, id int64, req *models.ProfileUpdateRequest) (*models.User, error)
	List(ctx context.Context, page, pageSize int) (models.Page[models.User], error)
	Promote(ctx context.Context, id int64) (*models.User, error)
}

type CatalogServiceInterface interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id int64) (*models.Category, error)
	CreateCategory(ctx context.Context, req *models.CategoryRequest) (*models.Category, error)
	UpdateCategory(ctx context.Context, id int64, req *models.CategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ListServices(ctx context.Context, f models.ServiceFilter) (models.Page[models.Service], error)
	GetService(ctx context.Context, id int64) (*models.Service, error)
	GetActiveService(ctx context.Context, id int64) (*models.Service, error)
	CreateService(ctx context.Context, ownerID int64, req *models.ServiceRequest) (*models.Service, error)
	UpdateService(ctx context.Context, id int64, ownerID *int64, req *models.ServiceRequest) (*models.Service, error)
	DeleteService(ctx context.Context, id int64, ownerID *int64) error
}

type CartServiceInterface interface {
	Get(ctx context.Context, userID int64) (*models.Cart, error)
	Add(ctx context.Context, userID, serviceID int64, quantity int) (*models.Cart, error)
	Remove(ctx context.Context, userID, serviceID int64) (*models.Cart, error)
	UpdateQuantity(ctx context.Context, userID, serviceID int64, quantity int) (*models.Cart, error)
}

type OrderServiceInterface interface {
	Checkout(ctx context.Context, userID int64, email string, req *models.CheckoutRequest) (*models.CheckoutResponse, error)
	ListForUser(ctx context.Context, userID int64, page, pageSize int) (models.Page[models.Order], error)
	GetForUser(ctx context.Context, userID, id int64) (*models.Order, error)
	ListAll(ctx context.Context, page, pageSize int) (models.Page[models.Order], error)
	Get(ctx context.Context, id int64) (*models.Order, error)
	UpdateStatus(ctx context.Context, actor int64, isStaff bool, orderID int64, status string) (*models.Order, error)
}

type PaymentServiceInterface interface {
	HandleIPN(ctx context.Context, valID, tranID string) (*models.IPNResult, error)
	Analytics(ctx context.Context, days int) (*models.PaymentAnalytics, error)
	Refund(ctx context.Context, paymentID, actorID int64, req *models.RefundRequest) (*models.Payment, error)
	Dispute(ctx context.Context, paymentID, userID int64, isStaff bool, reason string) (*models.Payment, error)
}

type ReviewServiceInterface interface {
	Create(ctx context.Context, userID, serviceID int64, req *models.ReviewRequest) (*models.Review, error)
	ListForService(ctx context.Context, serviceID int64, page, pageSize int) (models.Page[models.Review], error)
	ListForUser(ctx context.Context, userID int64) ([]models.Review, error)
	Delete(ctx context.Context, id, userID int64, isStaff bool) error
	Summary(ctx context.Context, serviceID int64) (*models.RatingSummary, error)
	ListAll(ctx context.Context, f models.ReviewFilter) (models.Page[models.Review], error)
	Get(ctx context.Context, id int64) (*models.Review, error)
	Update(ctx context.Context, id int64, req *models.ReviewUpdateRequest) (*models.Review, error)
}

type SettingsServiceInterface interface {
	Get(ctx context.Context) (map[string]string, error)
	Update(ctx context.Context, settings map[string]string) (map[string]string, error)
	PublicConfig(ctx context.Context) (*models.PublicConfig, error)
	ClearCache(ctx context.Context) (int, error)
}

type UsageReaderInterface interface {
	Latest(ctx context.Context) (usage.Snapshot, error)
}
