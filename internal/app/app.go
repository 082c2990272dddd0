package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gatewayconnect/server/internal/shared/config"
	"github.com/gatewayconnect/server/internal/shared/middleware"
)

// App represents the application.
type App struct {
	config  *config.Config
	deps    *Dependencies
	router  *gin.Engine
	logger  *zap.Logger
	cleanup func()
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	deps, cleanup, err := InitializeDependencies(cfg)
	if err != nil {
		return nil, fmt.Errorf("init dependencies: %w", err)
	}

	app := &App{
		config:  cfg,
		deps:    deps,
		logger:  deps.Logger,
		cleanup: cleanup,
	}
	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// setupRouter creates and configures the Gin router.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.deps.Metrics))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.deps.Registry, promhttp.HandlerOpts{})))

	return r
}

// registerRoutes registers the platform, webhook and admin routes.
func (a *App) registerRoutes() {
	payments := a.deps.PaymentHandler

	payments.RegisterPayRoute(a.router, middleware.Idempotency(a.deps.Redis, middleware.IdempotencyConfig{
		TTL: a.config.Gateway.IdempotencyTTL,
	}))
	payments.RegisterRoutes(a.router)
	a.deps.WebhookHandler.RegisterRoutes(a.router)

	admin := a.router.Group("/admin", middleware.AdminSecret(a.config.Admin.Secret, a.config.Admin.SecretHash))
	payments.RegisterAdminRoutes(admin)
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop drains in-flight callbacks and releases resources.
func (a *App) Stop(ctx context.Context) {
	if a.deps.Dispatcher != nil {
		if err := a.deps.Dispatcher.Wait(ctx); err != nil {
			a.logger.Warn("pending callbacks abandoned", zap.Error(err))
		}
	}

	if a.cleanup != nil {
		a.cleanup()
	}
}
