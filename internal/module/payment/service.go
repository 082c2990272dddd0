package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gatewayconnect/server/internal/module/payment/callback"
	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/module/payment/provider"
	"github.com/gatewayconnect/server/internal/shared/logger"
	"go.uber.org/zap"
)

// Service implements the platform-facing payment operations.
type Service struct {
	repo       Repository
	registry   *ProviderRegistry
	dispatcher CallbackDispatcher
	logger     *zap.Logger
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	registry *ProviderRegistry,
	dispatcher CallbackDispatcher,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger.Named("payment"),
	}
}

// Pay validates a pay request, routes it to a provider and returns the
// canonical pay response.
func (s *Service) Pay(ctx context.Context, req *PlatformRequest) (*domain.PayResponse, error) {
	payReq, err := req.ToPayRequest()
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.Resolve(req.ProviderName(), req.PaymentMethod())
	if err != nil {
		return nil, err
	}

	resp, err := adapter.Pay(ctx, payReq)
	if err != nil {
		return nil, fmt.Errorf("%s pay: %w", adapter.Name(), err)
	}

	logger.WithRequest(ctx, s.logger).Info("pay processed",
		zap.String("provider", adapter.Name()),
		zap.String("token", payReq.PlatformToken),
		zap.String("order_number", payReq.OrderNumber),
		zap.String("result", string(resp.Result)),
		zap.String("gateway_token", domain.Deref(resp.GatewayToken)),
	)
	return resp, nil
}

// Status reports the provider-side state of a transaction. A request without
// any lookup key gets a canonical ERROR answer rather than an error.
func (s *Service) Status(ctx context.Context, req *PlatformRequest) (*domain.StatusResponse, error) {
	key, byOperationID := req.LookupKey()
	if key == "" {
		return domain.Unsupported(ErrMissingLookupKey.Error()), nil
	}

	record, adapter, err := s.lookup(ctx, key, byOperationID)
	if err != nil {
		return nil, err
	}

	return adapter.Status(ctx, &provider.StatusRequest{
		Record:             record,
		AuthorizationToken: req.AuthorizationToken(),
	}), nil
}

// Refund refunds a correlated transaction, in full when no amount is given.
func (s *Service) Refund(ctx context.Context, req *PlatformRequest) (*domain.StatusResponse, error) {
	key, byOperationID := req.LookupKey()
	if key == "" {
		return nil, ErrMissingLookupKey
	}

	record, adapter, err := s.lookup(ctx, key, byOperationID)
	if err != nil {
		return nil, err
	}

	resp := adapter.Refund(ctx, &provider.RefundRequest{
		Record:             record,
		Amount:             req.RefundAmount(),
		AuthorizationToken: req.AuthorizationToken(),
	})
	logger.WithRequest(ctx, s.logger).Info("refund processed",
		zap.String("provider", adapter.Name()),
		zap.String("token", record.PlatformToken),
		zap.String("status", string(resp.Status)),
	)
	return resp, nil
}

// Payout routes a payout to the provider named in settings.
func (s *Service) Payout(ctx context.Context, req *PlatformRequest) (*domain.StatusResponse, error) {
	adapter, err := s.registry.Resolve(req.ProviderName(), "")
	if err != nil {
		return nil, err
	}
	return adapter.Payout(ctx, req.ToPayoutRequest()), nil
}

// ConfirmSecureCode forwards a payer-entered code to the record's provider.
func (s *Service) ConfirmSecureCode(ctx context.Context, req *PlatformRequest) (*domain.StatusResponse, error) {
	return s.interact(ctx, req, provider.Adapter.ConfirmSecureCode)
}

// ResendOTP asks the record's provider to resend a one-time password.
func (s *Service) ResendOTP(ctx context.Context, req *PlatformRequest) (*domain.StatusResponse, error) {
	return s.interact(ctx, req, provider.Adapter.ResendOTP)
}

// NextPaymentStep asks the record's provider for the next payer action.
func (s *Service) NextPaymentStep(ctx context.Context, req *PlatformRequest) (*domain.StatusResponse, error) {
	return s.interact(ctx, req, provider.Adapter.NextPaymentStep)
}

type interaction func(provider.Adapter, context.Context, *provider.InteractionRequest) *domain.StatusResponse

func (s *Service) interact(ctx context.Context, req *PlatformRequest, call interaction) (*domain.StatusResponse, error) {
	key, byOperationID := req.LookupKey()
	if key == "" {
		return nil, ErrMissingLookupKey
	}

	record, adapter, err := s.lookup(ctx, key, byOperationID)
	if err != nil {
		return nil, err
	}

	return call(adapter, ctx, &provider.InteractionRequest{
		Record:             record,
		Code:               req.SecureCode(),
		Params:             req.Extra(),
		AuthorizationToken: req.AuthorizationToken(),
	}), nil
}

// UpdateStatus overrides the stored status of a transaction and delivers a
// scheme A callback synchronously. A failed delivery is reported, not returned.
func (s *Service) UpdateStatus(ctx context.Context, token, newStatus string) (*AdminUpdateResponse, error) {
	token = strings.TrimSpace(token)
	newStatus = strings.TrimSpace(newStatus)
	switch {
	case token == "":
		return nil, required("token")
	case newStatus == "":
		return nil, required("new_status")
	}

	record, err := s.repo.FindByKey(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrCorrelationNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, record.PlatformToken, newStatus); err != nil {
		return nil, err
	}

	canonical := domain.Status(newStatus)
	if adapter, err := s.registry.Get(record.Provider); err == nil {
		canonical = adapter.NormalizeStatus(newStatus)
	}

	log := logger.WithRequest(ctx, s.logger).With(
		zap.String("token", record.PlatformToken),
		zap.String("new_status", newStatus),
		zap.String("status", string(canonical)),
	)

	err = s.dispatcher.Deliver(ctx, record.CallbackURL, &callback.Transaction{
		Token:        record.PlatformToken,
		GatewayToken: record.ProviderOperationID,
		Status:       string(canonical),
		Currency:     record.Currency,
		Amount:       record.Amount,
	})
	if err != nil {
		log.Warn("admin status callback failed", zap.Error(err))
	} else {
		log.Info("admin status updated")
	}

	return &AdminUpdateResponse{
		Result:            "ok",
		Token:             token,
		NewStatus:         newStatus,
		CallbackDelivered: err == nil,
	}, nil
}

// FindForm returns the record behind a hosted QR form.
func (s *Service) FindForm(ctx context.Context, gatewayToken string) (*domain.Correlation, error) {
	record, err := s.find(ctx, gatewayToken, true)
	if err != nil {
		if errors.Is(err, domain.ErrCorrelationNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return record, nil
}

// lookup resolves a correlation record and the adapter that created it.
func (s *Service) lookup(ctx context.Context, key string, byOperationID bool) (*domain.Correlation, provider.Adapter, error) {
	record, err := s.find(ctx, key, byOperationID)
	if err != nil {
		if errors.Is(err, domain.ErrCorrelationNotFound) {
			return nil, nil, ErrUnknownToken
		}
		return nil, nil, err
	}

	adapter, err := s.registry.Get(record.Provider)
	if err != nil {
		return nil, nil, fmt.Errorf("provider missing for token: %w", err)
	}
	return record, adapter, nil
}

// find tries the provider operation id first when asked to, then the platform
// token and order number.
func (s *Service) find(ctx context.Context, key string, byOperationID bool) (*domain.Correlation, error) {
	if byOperationID {
		record, err := s.repo.FindByOperationID(ctx, key)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, domain.ErrCorrelationNotFound) {
			return nil, err
		}
	}
	return s.repo.FindByKey(ctx, key)
}
