package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/callback"
	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/module/payment/provider"
	"github.com/gatewayconnect/server/internal/shared/logger"
	"github.com/gatewayconnect/server/internal/shared/metrics"
	"github.com/gatewayconnect/server/internal/utils/requestctx"
	"go.uber.org/zap"
)

const (
	unknownStatus    = "unknown"
	defaultReplayTTL = 10 * time.Minute
)

// Webhook outcomes, as counted in metrics.
const (
	webhookApplied   = "applied"
	webhookUnmatched = "unmatched"
	webhookIgnored   = "ignored"
	webhookRejected  = "rejected"
	webhookInvalid   = "invalid"
	webhookReplay    = "replay"
)

// WebhookService applies verified provider notifications to the correlation
// store and relays the outcome to the platform.
type WebhookService struct {
	repo       Repository
	registry   *ProviderRegistry
	dispatcher CallbackDispatcher
	replay     ReplayGuard
	replayTTL  time.Duration
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// WebhookOption configures a WebhookService.
type WebhookOption func(*WebhookService)

// WithReplayGuard skips notifications whose body was processed within ttl.
func WithReplayGuard(guard ReplayGuard, ttl time.Duration) WebhookOption {
	return func(s *WebhookService) {
		s.replay = guard
		if ttl > 0 {
			s.replayTTL = ttl
		}
	}
}

// WithWebhookMetrics records webhook outcomes.
func WithWebhookMetrics(m *metrics.Metrics) WebhookOption {
	return func(s *WebhookService) {
		s.metrics = m
	}
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	repo Repository,
	registry *ProviderRegistry,
	dispatcher CallbackDispatcher,
	logger *zap.Logger,
	opts ...WebhookOption,
) *WebhookService {
	s := &WebhookService{
		repo:       repo,
		registry:   registry,
		dispatcher: dispatcher,
		replayTTL:  defaultReplayTTL,
		logger:     logger.Named("webhook"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle verifies and applies one notification for the named provider.
// Unknown orders are acknowledged without side effects.
func (s *WebhookService) Handle(ctx context.Context, providerName string, body []byte, header http.Header) error {
	adapter, err := s.registry.Get(providerName)
	if err != nil {
		return err
	}
	name := adapter.Name()
	ctx = requestctx.WithProvider(ctx, name)
	log := logger.WithRequest(ctx, s.logger)

	n, err := adapter.ParseNotification(body, header)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrInvalidSignature):
			s.metrics.RecordWebhook(name, webhookRejected)
			log.Warn("webhook signature rejected")
		default:
			s.metrics.RecordWebhook(name, webhookInvalid)
			log.Warn("malformed webhook", zap.Error(err))
		}
		return err
	}
	if n == nil {
		s.metrics.RecordWebhook(name, webhookIgnored)
		return nil
	}

	var claimed string
	if s.replay != nil {
		key := replayKey(name, body)
		first, err := s.replay.FirstSeen(ctx, key, s.replayTTL)
		switch {
		case err != nil:
			log.Warn("replay guard unavailable", zap.Error(err))
		case !first:
			s.metrics.RecordWebhook(name, webhookReplay)
			log.Info("duplicate webhook acknowledged", zap.String("operation_id", n.OperationID))
			return nil
		default:
			claimed = key
		}
	}

	if err := s.apply(ctx, log, name, adapter, n); err != nil {
		if claimed != "" {
			if ferr := s.replay.Forget(ctx, claimed); ferr != nil {
				log.Warn("replay guard release failed", zap.Error(ferr))
			}
		}
		return err
	}
	return nil
}

// apply correlates a verified notification, stores its status and notifies
// the platform.
func (s *WebhookService) apply(ctx context.Context, log *zap.Logger, name string, adapter provider.Adapter, n *provider.Notification) error {
	log = log.With(
		zap.String("operation_id", n.OperationID),
		zap.String("order_number", n.OrderNumber),
		zap.String("raw_status", n.RawStatus),
	)

	record, err := s.resolve(ctx, n)
	if err != nil {
		if errors.Is(err, domain.ErrCorrelationNotFound) {
			s.metrics.RecordWebhook(name, webhookUnmatched)
			log.Info("webhook for unknown order acknowledged")
			return nil
		}
		return err
	}

	raw := n.RawStatus
	if raw == "" {
		raw = unknownStatus
	}
	owner := recordAdapter(s.registry, record, adapter)
	if prev := domain.Deref(record.Status); prev != "" && prev != raw {
		if owner.NormalizeStatus(prev).IsTerminal() {
			log.Warn("terminal status overwritten", zap.String("previous_status", prev))
		}
	}
	if err := s.repo.UpdateStatus(ctx, record.PlatformToken, raw); err != nil {
		return fmt.Errorf("apply webhook: %w", err)
	}

	canonical := owner.NormalizeStatus(n.RawStatus)
	gatewayToken := record.ProviderOperationID
	if n.OperationID != "" {
		gatewayToken = domain.Optional(n.OperationID)
	}
	s.dispatcher.Notify(ctx, record.CallbackURL, callback.NewResult(string(canonical), gatewayToken))

	s.metrics.RecordWebhook(name, webhookApplied)
	log.Info("webhook applied",
		zap.String("token", record.PlatformToken),
		zap.String("status", string(canonical)),
	)
	return nil
}

// resolve finds the record by provider operation id, then by order number.
func (s *WebhookService) resolve(ctx context.Context, n *provider.Notification) (*domain.Correlation, error) {
	if n.OperationID != "" {
		record, err := s.repo.FindByOperationID(ctx, n.OperationID)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, domain.ErrCorrelationNotFound) {
			return nil, err
		}
	}
	if n.OrderNumber == "" {
		return nil, domain.ErrCorrelationNotFound
	}
	return s.repo.FindByKey(ctx, n.OrderNumber)
}

// recordAdapter returns the adapter that created record, falling back to the
// adapter that received the notification.
func recordAdapter(registry *ProviderRegistry, record *domain.Correlation, fallback provider.Adapter) provider.Adapter {
	if a, err := registry.Get(record.Provider); err == nil {
		return a
	}
	return fallback
}

func replayKey(providerName string, body []byte) string {
	sum := sha256.Sum256(body)
	return providerName + ":" + hex.EncodeToString(sum[:])
}
