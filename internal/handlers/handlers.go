package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/config"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/internal/validation"
)

type Handlers struct {
	Health        *HealthHandler
	Auth          *AuthHandler
	PasswordReset *PasswordResetHandler
	User          *UserHandler
	Catalog       *CatalogHandler
	Cart          *CartHandler
	Order         *OrderHandler
	Payment       *PaymentHandler
	Review        *ReviewHandler
	Settings      *SettingsHandler
	Usage         *UsageHandler
	Notifications *NotificationHandler
}

func New(cfg *config.Config, logger *logrus.Logger, services *services.Services, schemas *validation.SchemaValidator) *Handlers {
	cookies := auth.CookieSettings{
		Secure:   cfg.Auth.Cookie.Secure,
		SameSite: config.ParseSameSite(cfg.Auth.Cookie.SameSite),
		Path:     cfg.Auth.Cookie.Path,
		Domain:   cfg.Auth.Cookie.Domain,
	}

	return &Handlers{
		Health:        NewHealthHandler(logger, services.Health),
		Auth:          NewAuthHandler(logger, services.Auth, cookies),
		PasswordReset: NewPasswordResetHandler(logger, services.PasswordReset),
		User:          NewUserHandler(logger, services.Users),
		Catalog:       NewCatalogHandler(logger, services.Catalog),
		Cart:          NewCartHandler(logger, services.Cart),
		Order:         NewOrderHandler(logger, services.Orders),
		Payment:       NewPaymentHandler(logger, services.Payments, schemas, cfg.Server.FrontendURL),
		Review:        NewReviewHandler(logger, services.Reviews),
		Settings:      NewSettingsHandler(logger, services.Settings),
		Usage:         NewUsageHandler(logger, services.Usage),
		Notifications: NewNotificationHandler(logger, services.Notifications, cfg.Security.CORS.AllowedOrigins),
	}
}
