package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/temcen/homeser/internal/auth"
	"github.com/temcen/homeser/internal/config"
	"github.com/temcen/homeser/internal/database"
	"github.com/temcen/homeser/internal/docs"
	"github.com/temcen/homeser/internal/handlers"
	"github.com/temcen/homeser/internal/middleware"
	"github.com/temcen/homeser/internal/services"
	"github.com/temcen/homeser/internal/validation"
)

const (
	migrationTimeout      = 2 * time.Minute
	systemMetricsInterval = 30 * time.Second
)

type App struct {
	config   *config.Config
	logger   *logrus.Logger
	db       *database.Database
	registry *prometheus.Registry
	schemas  *validation.SchemaValidator
	services *services.Services
	handlers *handlers.Handlers
	router   *gin.Engine

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	// Initialize database connections
	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if cfg.Database.MigrateOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), migrationTimeout)
		err := database.Migrate(ctx, cfg.Database.URL, app.logger)
		cancel()
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	schemas, err := validation.NewSchemaValidator()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load JSON schemas: %w", err)
	}
	app.schemas = schemas

	// Initialize services
	svcs, err := services.New(cfg, app.logger, db, app.registry)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	// Initialize handlers
	app.handlers = handlers.New(cfg, app.logger, svcs, schemas)

	// Setup router
	if err := app.setupRouter(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}

	return app, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Start launches the background jobs: the Kafka consumer, the usage
// reporter, system metrics and the bloom filter warm-up.
func (a *App) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)

	a.goBackground(func() {
		if err := a.services.EventBus.Consume(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.WithError(err).Error("Event consumer stopped")
		}
	})
	a.goBackground(func() { a.services.Usage.Run(ctx) })
	a.goBackground(func() {
		a.services.Health.CollectSystemMetrics(ctx, a.db.PG, systemMetricsInterval)
	})
	a.goBackground(func() {
		if err := a.services.Catalog.WarmBloomFilter(ctx); err != nil {
			// Lookups fall through to the database without the filter.
			a.logger.WithError(err).Warn("Failed to warm service bloom filter")
		}
	})
}

func (a *App) goBackground(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("Background jobs did not stop before the shutdown deadline")
	}

	var errs []error
	if err := a.services.EventBus.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing event bus")
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

// newEngine builds a bare engine whose ClientIP only honours forwarding
// headers from the configured proxies.
func newEngine(cfg *config.Config) (*gin.Engine, error) {
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	return router, nil
}

func (a *App) setupRouter() error {
	router, err := newEngine(a.config)
	if err != nil {
		return err
	}
	h := a.handlers
	svcs := a.services

	apiDocs, err := docs.NewHandler(docs.Info{
		Title:       "HomeSer API",
		Description: "Household Service Platform REST API",
		Version:     "1.0.0",
	}, auth.AccessCookieName, router.Routes)
	if err != nil {
		return fmt.Errorf("failed to load API docs: %w", err)
	}

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	if a.config.Compression.Enabled {
		router.Use(middleware.Compress(a.config.Compression.MinSize))
	}
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Metrics(svcs.Metrics))
	router.Use(middleware.Authenticate(svcs.Authenticator, a.logger))
	router.Use(middleware.Throttle(svcs.RateLimiter, services.ThrottleScopes(a.config.Throttle), svcs.Metrics, a.logger))

	validate := middleware.NewValidationMiddleware(a.schemas)
	requireAuth := middleware.RequireAuth()
	requireStaff := middleware.RequireStaff()
	cached := middleware.ResponseCache(a.db.Redis, a.config.Cache.Prefix, a.config.Cache.TTL, a.logger)

	// Health check endpoints (no auth required)
	router.GET("/health", h.Health.Check)

	if a.config.Monitoring.Enabled {
		router.GET(a.config.Monitoring.MetricsPath, gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))
	}

	apiDocs.RegisterRoutes(router)

	// Persistent connections; the handler refuses anonymous callers itself so
	// the 401 is written before any upgrade.
	router.GET("/ws/orders", h.Notifications.Orders)
	router.GET("/ws/payments", h.Notifications.Payments)

	api := router.Group("/api")
	api.Use(validate.ValidateQueryParams())
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", h.Auth.Register)
			authRoutes.POST("/login", h.Auth.Login)
			authRoutes.POST("/logout", h.Auth.Logout)
			authRoutes.POST("/token/refresh", h.Auth.Refresh)
			authRoutes.GET("/me", requireAuth, h.Auth.Me)
			authRoutes.POST("/password-reset/", h.PasswordReset.Request)
			authRoutes.POST("/password-reset/validate/", h.PasswordReset.Validate)
			authRoutes.POST("/password-reset/confirm/", h.PasswordReset.Confirm)
		}

		// Public catalog
		api.GET("/services", cached, h.Catalog.ListServices)
		api.GET("/services/:id", cached, h.Catalog.GetService)
		api.GET("/services/:id/reviews", cached, h.Review.ListForService)
		api.POST("/services/:id/reviews", requireAuth, h.Review.Create)
		api.GET("/services/:id/rating", cached, h.Review.Rating)
		api.GET("/categories", cached, h.Catalog.ListCategories)
		api.GET("/categories/:id", cached, h.Catalog.GetCategory)

		api.GET("/config/public", h.Settings.PublicConfig)

		// Cart reads are open; anonymous callers see an empty cart.
		api.GET("/cart", h.Cart.Get)
		cart := api.Group("/cart", requireAuth)
		{
			cart.POST("/add", h.Cart.Add)
			cart.POST("/remove", h.Cart.Remove)
			cart.POST("/update-quantity", h.Cart.UpdateQuantity)
		}

		user := api.Group("", requireAuth)
		{
			user.POST("/checkout", h.Order.Checkout)
			user.GET("/user/orders", h.Order.ListMine)
			user.GET("/user/orders/:id", h.Order.GetMine)
			user.GET("/reviews/user", h.Review.ListMine)
			user.DELETE("/reviews/:id", h.Review.Delete)
			user.GET("/profile", h.User.GetProfile)
			user.PUT("/profile", h.User.UpdateProfile)
		}

		// Gateway callbacks are unauthenticated; the IPN is verified against
		// the gateway's validation API instead.
		payments := api.Group("/payments")
		{
			for _, path := range []string{"/ipn", "/ipn/"} {
				payments.POST(path, h.Payment.IPN)
			}
			for _, result := range []string{"success", "fail", "cancel"} {
				payments.POST("/"+result+"/", h.Payment.Callback(result))
				payments.GET("/"+result+"/", h.Payment.Callback(result))
			}
			payments.GET("/analytics", requireStaff, h.Payment.Analytics)
			payments.POST("/refund/:id", requireStaff, h.Payment.Refund)
			payments.POST("/dispute/:id", requireAuth, h.Payment.Dispute)
		}

		settings := api.Group("/settings", requireStaff)
		{
			settings.GET("", h.Settings.Get)
			settings.PUT("", validate.ValidateBody(validation.SchemaSettingsUpdate), h.Settings.Update)
			settings.POST("/cache/clear", h.Settings.ClearCache)
		}

		staff := api.Group("/staff", requireStaff)
		{
			staff.GET("/services", h.Catalog.StaffListServices)
			staff.POST("/services", h.Catalog.CreateService)
			staff.GET("/services/:id", h.Catalog.StaffGetService)
			staff.PUT("/services/:id", h.Catalog.StaffUpdateService)
			staff.DELETE("/services/:id", h.Catalog.StaffDeleteService)

			staff.GET("/categories", h.Catalog.ListCategories)
			staff.POST("/categories", h.Catalog.CreateCategory)
			staff.GET("/categories/:id", h.Catalog.GetCategory)
			staff.PUT("/categories/:id", h.Catalog.UpdateCategory)
			staff.DELETE("/categories/:id", h.Catalog.DeleteCategory)
		}

		provider := api.Group("/provider", requireAuth)
		{
			provider.GET("/services", h.Catalog.ProviderListServices)
			provider.POST("/services", h.Catalog.CreateService)
			provider.PUT("/services/:id", h.Catalog.ProviderUpdateService)
			provider.DELETE("/services/:id", h.Catalog.ProviderDeleteService)
		}

		admin := api.Group("/admin", requireStaff)
		{
			admin.GET("/orders", h.Order.ListAll)
			admin.GET("/orders/:id", h.Order.Get)
			admin.PATCH("/orders/:id/status", h.Order.UpdateStatus)
			admin.PUT("/orders/:id/status", h.Order.UpdateStatus)
			admin.GET("/users", h.User.ListUsers)
			admin.POST("/promote", h.User.Promote)
			admin.GET("/usage", h.Usage.Latest)

			admin.GET("/reviews", h.Review.AdminList)
			admin.GET("/reviews/:id", h.Review.AdminGet)
			admin.PUT("/reviews/:id", h.Review.AdminUpdate)
			admin.PATCH("/reviews/:id", h.Review.AdminUpdate)
			admin.DELETE("/reviews/:id", h.Review.AdminDelete)
		}
	}

	a.router = router
	return nil
}
