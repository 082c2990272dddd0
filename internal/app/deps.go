package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewayconnect/server/internal/module/payment"
	"github.com/gatewayconnect/server/internal/module/payment/callback"
	"github.com/gatewayconnect/server/internal/shared/config"
	"github.com/gatewayconnect/server/internal/shared/metrics"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      goredis.UniversalClient
	HTTPClient *http.Client
	Logger     *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics

	Providers      *payment.ProviderRegistry
	Dispatcher     *callback.Dispatcher
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
}
