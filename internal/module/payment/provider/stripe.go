package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/shared/logger"
	"github.com/gatewayconnect/server/internal/shared/metrics"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeIdempotencyKey derives a stable key so a replayed pay for the same
// platform token reuses the original PaymentIntent.
func StripeIdempotencyKey(platformToken string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("gatewayconnect:pay:"+platformToken)).String()
}

// StripeName is the canonical name of the Stripe card provider.
const StripeName = "Stripe_CARD"

const stripeGateway = "stripe"

var stripeVocabulary = domain.NewVocabulary(
	[]string{"succeeded"},
	[]string{"canceled", "payment_failed"},
	[]string{"refunded"},
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	// BaseURL overrides the Stripe API endpoint, mainly for tests.
	BaseURL string
}

// Stripe is the card adapter backed by PaymentIntents.
type Stripe struct {
	unsupported
	cfg      StripeConfig
	api      *client.API
	backends *stripe.Backends
	store    CorrelationStore
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewStripe creates a Stripe adapter with its own API client; the global
// stripe.Key is never touched.
func NewStripe(cfg StripeConfig, store CorrelationStore, opts ClientOptions) *Stripe {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	hc = &http.Client{Transport: hc.Transport, Timeout: timeout}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        hc,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	backends := &stripe.Backends{API: backend, Connect: backend, Uploads: backend}

	return &Stripe{
		cfg:      cfg,
		api:      client.New(cfg.APIKey, backends),
		backends: backends,
		store:    store,
		metrics:  opts.Metrics,
		logger:   log.With(zap.String("provider", StripeName)),
	}
}

// Name returns the provider name.
func (s *Stripe) Name() string {
	return StripeName
}

// NormalizeStatus maps a PaymentIntent or webhook status to the canonical set.
func (s *Stripe) NormalizeStatus(raw string) domain.Status {
	return stripeVocabulary.Normalize(raw)
}

// observe records a finished Stripe call and reports whether err is an API error.
func (s *Stripe) observe(ctx context.Context, operation string, start time.Time, err error) (apiErr *stripe.Error) {
	elapsed := time.Since(start)
	log := logger.WithRequest(ctx, s.logger).With(zap.String("operation", operation))
	switch {
	case err == nil:
		s.metrics.RecordProviderCall(StripeName, operation, "ok", elapsed)
		log.Info("provider call", zap.Duration("elapsed", elapsed))
	case errors.As(err, &apiErr):
		s.metrics.RecordProviderCall(StripeName, operation, "http_error", elapsed)
		log.Warn("stripe api error",
			zap.Int("status", apiErr.HTTPStatusCode),
			zap.String("code", string(apiErr.Code)),
		)
	default:
		s.metrics.RecordProviderCall(StripeName, operation, "transport_error", elapsed)
		log.Warn("provider unreachable", zap.Duration("elapsed", elapsed), zap.Error(err))
	}
	return apiErr
}

// stripeFailureLog builds the log entry of a failed call.
func stripeFailureLog(path string, params any, kind string, apiErr *stripe.Error, err error) domain.LogEntry {
	if apiErr == nil {
		return transportLog(stripeGateway, path, params, kind, err)
	}
	return domain.LogEntry{
		Gateway: stripeGateway,
		Request: domain.LogRequest{URL: path, Params: params},
		Status:  apiErr.HTTPStatusCode,
		Response: map[string]any{
			"error": apiErr.Msg,
			"code":  string(apiErr.Code),
			"type":  string(apiErr.Type),
		},
		Kind: kind,
	}
}

func stripeLog(path string, params any, kind string, response any) domain.LogEntry {
	return domain.LogEntry{
		Gateway:  stripeGateway,
		Request:  domain.LogRequest{URL: path, Params: params},
		Status:   http.StatusOK,
		Response: response,
		Kind:     kind,
	}
}

// apiFor returns the API client for an overriding key, or the configured one.
func (s *Stripe) apiFor(override string) *client.API {
	if override == "" || override == s.cfg.APIKey {
		return s.api
	}
	return client.New(override, s.backends)
}

// Pay creates a PaymentIntent; the client secret is handed to the platform
// so the card form is rendered on its side.
func (s *Stripe) Pay(ctx context.Context, req *PayRequest) (*domain.PayResponse, error) {
	const path = "/v1/payment_intents"
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("platform_token", req.PlatformToken)
	params.AddMetadata("order_number", req.OrderNumber)
	params.SetIdempotencyKey(StripeIdempotencyKey(req.PlatformToken))
	logged := map[string]any{
		"amount":       req.Amount,
		"currency":     strings.ToLower(req.Currency),
		"order_number": req.OrderNumber,
	}

	start := time.Now()
	pi, err := s.apiFor(req.AuthorizationToken).PaymentIntents.New(params)
	if apiErr := s.observe(ctx, "pay", start, err); err != nil {
		return domain.DeclinedPayResponse(stripeFailureLog(path, logged, "pay", apiErr, err)), nil
	}

	if err := s.store.Upsert(ctx, &domain.Correlation{
		PlatformToken:       req.PlatformToken,
		OrderNumber:         domain.Optional(req.OrderNumber),
		Provider:            StripeName,
		ProviderOperationID: domain.Optional(pi.ID),
		CallbackURL:         req.CallbackURL,
		Status:              domain.Optional(string(pi.Status)),
		Amount:              &req.Amount,
		Currency:            domain.Optional(req.Currency),
	}); err != nil {
		return nil, fmt.Errorf("store correlation: %w", err)
	}

	out := domain.NewPayResponse(s.NormalizeStatus(string(pi.Status)))
	out.GatewayToken = domain.Optional(pi.ID)
	out.RedirectRequest = domain.EmbeddedJSON("")
	out.ProviderResponseData = domain.ResponseData{
		"payment_intent": pi.ID,
		"client_secret":  pi.ClientSecret,
		"status":         string(pi.Status),
		"amount":         pi.Amount,
		"currency":       string(pi.Currency),
	}
	out.Logs = append(out.Logs, stripeLog(path, logged, "pay", map[string]any{
		"id":     pi.ID,
		"status": string(pi.Status),
	}))
	return out, nil
}

// Status retrieves the PaymentIntent.
func (s *Stripe) Status(ctx context.Context, req *StatusRequest) *domain.StatusResponse {
	id := req.Record.OperationID()
	if id == "" {
		return domain.PendingStatus("no payment intent in mapping")
	}
	path := "/v1/payment_intents/" + id

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	start := time.Now()
	pi, err := s.apiFor(req.AuthorizationToken).PaymentIntents.Get(id, params)
	if apiErr := s.observe(ctx, "status", start, err); err != nil {
		entry := stripeFailureLog(path, nil, "status", apiErr, err)
		if apiErr == nil {
			return domain.PendingStatus("Gateway unreachable: "+err.Error(), entry)
		}
		return &domain.StatusResponse{
			Result:  domain.ResultError,
			Status:  domain.StatusDeclined,
			Details: apiErr.Msg,
			Logs:    []domain.LogEntry{entry},
		}
	}

	status := s.NormalizeStatus(string(pi.Status))
	amount := json.Number(fmt.Sprint(pi.Amount))
	currency := strings.ToUpper(string(pi.Currency))
	return &domain.StatusResponse{
		Result:   domain.ResultOK,
		Status:   status,
		Details:  "Transaction status: " + string(status),
		Amount:   &amount,
		Currency: &currency,
		Logs: []domain.LogEntry{stripeLog(path, nil, "status", map[string]any{
			"id":     pi.ID,
			"status": string(pi.Status),
		})},
		ProviderResponseData: domain.ResponseData{"payment_intent": pi.ID, "status": string(pi.Status)},
	}
}

// Refund refunds a PaymentIntent in full or in part.
func (s *Stripe) Refund(ctx context.Context, req *RefundRequest) *domain.StatusResponse {
	id := req.Record.OperationID()
	if id == "" {
		return domain.Unsupported("no payment intent in mapping")
	}
	const path = "/v1/refunds"

	params := &stripe.RefundParams{PaymentIntent: stripe.String(id)}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	params.Context = ctx
	logged := map[string]any{"payment_intent": id, "amount": req.Amount}

	start := time.Now()
	r, err := s.apiFor(req.AuthorizationToken).Refunds.New(params)
	if apiErr := s.observe(ctx, "refund", start, err); err != nil {
		entry := stripeFailureLog(path, logged, "refund", apiErr, err)
		details := "Gateway unreachable: " + err.Error()
		if apiErr != nil {
			details = apiErr.Msg
		}
		return &domain.StatusResponse{
			Result:  domain.ResultError,
			Status:  domain.StatusDeclined,
			Details: details,
			Logs:    []domain.LogEntry{entry},
		}
	}

	status := domain.StatusPending
	switch r.Status {
	case stripe.RefundStatusSucceeded:
		status = domain.StatusRefunded
	case stripe.RefundStatusFailed, stripe.RefundStatusCanceled:
		status = domain.StatusDeclined
	}
	amount := json.Number(fmt.Sprint(r.Amount))
	currency := strings.ToUpper(string(r.Currency))
	return &domain.StatusResponse{
		Result:   domain.ResultOK,
		Status:   status,
		Details:  "Refund status: " + string(r.Status),
		Amount:   &amount,
		Currency: &currency,
		Logs: []domain.LogEntry{stripeLog(path, logged, "refund", map[string]any{
			"id":     r.ID,
			"status": string(r.Status),
		})},
	}
}

// ParseNotification verifies the Stripe-Signature header and maps the
// payment events it knows; other events yield a nil notification.
func (s *Stripe) ParseNotification(body []byte, header http.Header) (*Notification, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(body, header.Get("Stripe-Signature"), s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
		}
		return &Notification{
			OperationID: pi.ID,
			OrderNumber: pi.Metadata["order_number"],
			RawStatus:   strings.TrimPrefix(string(event.Type), "payment_intent."),
			Amount:      fmt.Sprint(pi.Amount),
		}, nil
	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
		}
		n := &Notification{
			OrderNumber: ch.Metadata["order_number"],
			RawStatus:   "refunded",
			Amount:      fmt.Sprint(ch.AmountRefunded),
		}
		if ch.PaymentIntent != nil {
			n.OperationID = ch.PaymentIntent.ID
		}
		return n, nil
	default:
		return nil, nil
	}
}
