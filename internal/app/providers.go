package app

import (
	"net/http"
	"strings"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewayconnect/server/internal/infra/httpclient"
	"github.com/gatewayconnect/server/internal/module/payment"
	"github.com/gatewayconnect/server/internal/module/payment/callback"
	"github.com/gatewayconnect/server/internal/module/payment/provider"
	"github.com/gatewayconnect/server/internal/shared/cache"
	"github.com/gatewayconnect/server/internal/shared/config"
	"github.com/gatewayconnect/server/internal/shared/database"
	"github.com/gatewayconnect/server/internal/shared/logger"
	"github.com/gatewayconnect/server/internal/shared/metrics"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideZapLogger,
	ProvideDatabase,
	ProvideRedisClient,
	ProvideHTTPClient,
	ProvideRegistry,
	ProvideMetrics,
)

// ProvideZapLogger creates the zap logger. The cleanup flushes it.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, func(), error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}

// ProvideDatabase opens the database and migrates the correlation table.
func ProvideDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, func(), error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := payment.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, nil, err
	}
	log.Info("database ready", zap.String("driver", cfg.Database.Driver))
	return db, func() { _ = database.Close(db) }, nil
}

// ProvideRedisClient creates a Redis client. Redis is optional: a nil client
// disables idempotency and webhook replay protection.
func ProvideRedisClient(cfg *config.Config, log *zap.Logger) (goredis.UniversalClient, func()) {
	if !cfg.Redis.Enabled() {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn("Redis connection failed, continuing without it", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = cache.Close(client) }
}

// ProvideHTTPClient creates the pooled HTTP client shared by provider adapters.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return httpclient.New(cfg.HTTPClient)
}

// ProvideRegistry creates the prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates the application metrics.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New("gatewayconnect", reg)
}

// ===== Payment Providers =====

// PaymentSet provides the payment module.
var PaymentSet = wire.NewSet(
	payment.NewRepository,
	ProvideProviderRegistry,
	ProvideSigner,
	ProvideDispatcher,
	wire.Bind(new(payment.CallbackDispatcher), new(*callback.Dispatcher)),
	ProvideReplayGuard,
	ProvidePaymentService,
	ProvideWebhookService,
	payment.NewHandler,
	payment.NewWebhookHandler,
)

// ProvideProviderRegistry builds adapters from configuration and registers them.
// Stripe is registered only when an API key is configured.
func ProvideProviderRegistry(
	cfg *config.Config,
	repo payment.Repository,
	hc *http.Client,
	m *metrics.Metrics,
	log *zap.Logger,
) *payment.ProviderRegistry {
	options := func(baseURL string) provider.ClientOptions {
		return provider.ClientOptions{
			BaseURL:    baseURL,
			Timeout:    cfg.HTTPClient.Timeout,
			HTTPClient: hc,
			Breaker: provider.BreakerSettings{
				FailureThreshold: cfg.Breaker.FailureThreshold,
				OpenTimeout:      cfg.Breaker.OpenTimeout,
				HalfOpenRequests: cfg.Breaker.HalfOpenRequests,
			},
			Metrics: m,
			Logger:  log,
		}
	}

	registry := payment.NewProviderRegistry(cfg.Gateway.DefaultProvider)

	p := cfg.Providers
	registry.Register(provider.NewBrusnika(provider.BrusnikaConfig{
		APIKey:     p.Brusnika.APIKey,
		WebhookURL: webhookURL(p.Brusnika.WebhookURL, cfg.Gateway.PublicBaseURL, "brusnika"),
	}, repo, options(p.Brusnika.BaseURL)))

	registry.Register(provider.NewForta(provider.FortaConfig{
		APIToken:      p.Forta.APIToken,
		WebhookURL:    webhookURL(p.Forta.WebhookURL, cfg.Gateway.PublicBaseURL, "forta"),
		PublicBaseURL: cfg.Gateway.PublicBaseURL,
	}, repo, options(p.Forta.BaseURL)))

	if p.Stripe.APIKey != "" {
		registry.Register(provider.NewStripe(provider.StripeConfig{
			APIKey:        p.Stripe.APIKey,
			WebhookSecret: p.Stripe.WebhookSecret,
			BaseURL:       p.Stripe.BaseURL,
		}, repo, options("")))
	}

	log.Info("payment providers registered", zap.Strings("providers", registry.List()))
	return registry
}

// webhookURL returns the configured webhook URL or derives it from the public base URL.
func webhookURL(configured, publicBaseURL, alias string) string {
	if configured != "" {
		return configured
	}
	if publicBaseURL == "" {
		return ""
	}
	return strings.TrimRight(publicBaseURL, "/") + "/provider/" + alias + "/webhook"
}

// ProvideSigner creates the callback signer.
func ProvideSigner(cfg *config.Config) *callback.Signer {
	return callback.NewSigner(cfg.Callback.SigningSecret, cfg.Callback.LegacyIV)
}

// ProvideDispatcher creates the callback dispatcher. It owns its HTTP client
// because callback timeouts differ from provider timeouts.
func ProvideDispatcher(cfg *config.Config, signer *callback.Signer, m *metrics.Metrics, log *zap.Logger) *callback.Dispatcher {
	return callback.NewDispatcher(callback.Config{
		RetryMax:  cfg.Callback.RetryMax,
		BaseDelay: cfg.Callback.BaseDelay,
		MaxDelay:  cfg.Callback.MaxDelay,
		Timeout:   cfg.Callback.Timeout,
	}, signer, nil, m, log)
}

// ProvideReplayGuard returns the Redis replay guard, or nil without Redis.
func ProvideReplayGuard(redis goredis.UniversalClient) payment.ReplayGuard {
	guard := cache.NewReplayGuard(redis)
	if guard == nil {
		return nil
	}
	return guard
}

// ProvidePaymentService creates the payment service.
func ProvidePaymentService(
	repo payment.Repository,
	registry *payment.ProviderRegistry,
	dispatcher payment.CallbackDispatcher,
	log *zap.Logger,
) *payment.Service {
	return payment.NewService(repo, registry, dispatcher, log)
}

// ProvideWebhookService creates the webhook service.
func ProvideWebhookService(
	cfg *config.Config,
	repo payment.Repository,
	registry *payment.ProviderRegistry,
	dispatcher payment.CallbackDispatcher,
	guard payment.ReplayGuard,
	m *metrics.Metrics,
	log *zap.Logger,
) *payment.WebhookService {
	opts := []payment.WebhookOption{payment.WithWebhookMetrics(m)}
	if guard != nil {
		opts = append(opts, payment.WithReplayGuard(guard, cfg.Gateway.WebhookReplayTTL))
	}
	return payment.NewWebhookService(repo, registry, dispatcher, log, opts...)
}
