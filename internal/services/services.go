package services

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/config"
	"github.com/temcen/homeser/internal/database"
	"github.com/temcen/homeser/internal/messaging"
	"github.com/temcen/homeser/internal/usage"
)

type Services struct {
	Authenticator *auth.Authenticator
	Auth          *AuthService
	PasswordReset *PasswordResetService
	Users         *UserService
	Health        *HealthService
	RateLimiter   *RateLimiter
	Metrics       *MetricsCollector
	EventBus      *messaging.EventBus
	Notifications *NotificationHub
	Catalog       *CatalogService
	Cart          *CartService
	Orders        *OrderService
	Payments      *PaymentService
	Reviews       *ReviewService
	Settings      *SettingsService
	Usage         *UsageReporter
}

func New(cfg *config.Config, logger *logrus.Logger, db *database.Database, reg prometheus.Registerer) (*Services, error) {
	codec, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to build token codec: %w", err)
	}

	metrics := NewMetricsCollector(reg)
	bus := messaging.NewEventBus(cfg, logger)

	hub := NewNotificationHub(logger)
	bus.Subscribe(hub.HandleEvent)

	users := NewUserService(db.PG, logger)
	authService := NewAuthService(users, codec, db.Redis, logger)
	resets := NewPasswordResetService(users, codec, db.Redis, bus, cfg.Server.FrontendURL, cfg.Auth.ResetTTL, logger)

	var bloom MembershipFilter
	if cfg.Bloom.Enabled {
		bloom = NewBloomFilter(db.Redis, cfg.Bloom.Key, cfg.Bloom.ErrorRate, cfg.Bloom.Capacity)
	}
	responseCache := NewResponseCacheStore(db.Redis, cfg.Cache.Prefix, logger)
	catalog := NewCatalogService(db.PG, bloom, responseCache, logger)
	cart := NewCartService(db.Redis, catalog, cfg.Cart.TTL, cfg.Payment.TaxRate, logger)

	gateway := NewSSLCommerzGateway(cfg.Payment.StoreID, cfg.Payment.StorePass, cfg.Payment.Sandbox,
		CallbackURLsFor(cfg.Server.BackendURL), cfg.Payment.Timeout, logger)
	payments := NewPaymentService(db.PG, gateway, bus, metrics, cfg.Payment.Currency, logger)
	orders := NewOrderService(db.PG, cart, catalog, payments, bus, metrics, cfg.Payment.TaxRate, logger)

	store, err := usage.NewStore(db.Redis, LimitsFromConfig(cfg.Usage.Limits))
	if err != nil {
		return nil, fmt.Errorf("failed to build usage store: %w", err)
	}

	critical := map[string]Check{
		"postgres": db.PG.Ping,
		"redis":    func(ctx context.Context) error { return db.Redis.Ping(ctx).Err() },
	}
	nonCritical := map[string]Check{}
	if bus.Enabled() {
		nonCritical["kafka"] = bus.Ping
	}

	health := NewHealthService(logger, reg, critical, nonCritical)
	health.AddDetails("events", bus.Stats)

	return &Services{
		Authenticator: auth.NewAuthenticator(codec, users),
		Auth:          authService,
		PasswordReset: resets,
		Users:         users,
		Health:        health,
		RateLimiter:   NewRateLimiter(db.Redis, logger),
		Metrics:       metrics,
		EventBus:      bus,
		Notifications: hub,
		Catalog:       catalog,
		Cart:          cart,
		Orders:        orders,
		Payments:      payments,
		Reviews:       NewReviewService(db.PG, catalog, NewSpamDetector(db.Redis, logger), responseCache, bus, metrics, logger),
		Settings:      NewSettingsService(db.PG, responseCache, cfg, logger),
		Usage:         NewUsageReporter(store, users, db.Redis, metrics, cfg.Usage, logger),
	}, nil
}
