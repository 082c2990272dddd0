package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
)

// Notification errors.
var (
	ErrInvalidSignature      = errors.New("invalid sign")
	ErrMalformedNotification = errors.New("malformed notification")
)

// Customer identifies the payer as the platform describes them.
type Customer struct {
	ClientID string
	IP       string
}

// PayRequest is a platform pay (or payout) request after normalization.
type PayRequest struct {
	PlatformToken      string
	OrderNumber        string
	Amount             int64
	Currency           string
	CallbackURL        string
	ProcessingURL      string
	RedirectSuccessURL string
	RedirectFailURL    string
	// PaymentMethod is the provider-facing method code from settings.
	PaymentMethod string
	// AuthorizationToken overrides the configured provider credential when set.
	AuthorizationToken string
	WrappedToJSON      bool
	ShowQROnForm       bool
	Customer           Customer
}

// StatusRequest asks a provider for the state of a correlated operation.
type StatusRequest struct {
	Record             *domain.Correlation
	AuthorizationToken string
}

// RefundRequest asks a provider to refund a correlated operation.
// A zero Amount refunds in full.
type RefundRequest struct {
	Record             *domain.Correlation
	Amount             int64
	AuthorizationToken string
}

// InteractionRequest drives the payer-interaction capabilities
// (secure code confirmation, OTP resend, next payment step).
type InteractionRequest struct {
	Record             *domain.Correlation
	Code               string
	Params             map[string]any
	AuthorizationToken string
}

// Notification is a verified inbound provider webhook.
type Notification struct {
	OperationID string
	OrderNumber string
	RawStatus   string
	Amount      string
}

// CorrelationStore persists correlation records on behalf of adapters.
type CorrelationStore interface {
	Upsert(ctx context.Context, c *domain.Correlation) error
}

// Adapter translates the canonical protocol to one provider's wire protocol.
//
// Provider outcomes, including unreachable providers, are reported through the
// returned canonical responses. Pay returns an error only for local failures.
type Adapter interface {
	// Name returns the canonical provider name.
	Name() string

	Pay(ctx context.Context, req *PayRequest) (*domain.PayResponse, error)
	Status(ctx context.Context, req *StatusRequest) *domain.StatusResponse
	Refund(ctx context.Context, req *RefundRequest) *domain.StatusResponse
	Payout(ctx context.Context, req *PayRequest) *domain.StatusResponse
	ConfirmSecureCode(ctx context.Context, req *InteractionRequest) *domain.StatusResponse
	ResendOTP(ctx context.Context, req *InteractionRequest) *domain.StatusResponse
	NextPaymentStep(ctx context.Context, req *InteractionRequest) *domain.StatusResponse

	// NormalizeStatus maps a raw provider status to the canonical set.
	NormalizeStatus(raw string) domain.Status

	// ParseNotification verifies and parses a webhook body. It returns
	// ErrInvalidSignature on verification failure and a nil notification
	// for events the adapter deliberately ignores.
	ParseNotification(body []byte, header http.Header) (*Notification, error)
}

// unsupported supplies the canonical answers for capabilities a provider lacks.
type unsupported struct{}

func (unsupported) Refund(context.Context, *RefundRequest) *domain.StatusResponse {
	return domain.Unsupported("Refund not supported by provider")
}

func (unsupported) Payout(context.Context, *PayRequest) *domain.StatusResponse {
	return domain.Unsupported("Payout not implemented for this provider")
}

func (unsupported) ConfirmSecureCode(context.Context, *InteractionRequest) *domain.StatusResponse {
	return domain.Unsupported("Secure code confirmation not supported by provider")
}

func (unsupported) ResendOTP(context.Context, *InteractionRequest) *domain.StatusResponse {
	return domain.Unsupported("OTP resend not supported by provider")
}

func (unsupported) NextPaymentStep(context.Context, *InteractionRequest) *domain.StatusResponse {
	return domain.Unsupported("Next payment step not supported by provider")
}

func credential(override, configured string) string {
	if override != "" {
		return override
	}
	return configured
}
