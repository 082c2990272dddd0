package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gatewayconnect/server/internal/module/payment/provider"
)

// PlatformRequest is the nested body the platform posts to every endpoint.
// Each section may also arrive under params; params wins when both are set.
type PlatformRequest struct {
	Settings      *PlatformSettings `json:"settings"`
	Customer      *PlatformCustomer `json:"customer"`
	Payment       *PlatformPayment  `json:"payment"`
	Params        *PlatformParams   `json:"params"`
	CallbackURL   string            `json:"callback_url"`
	ProcessingURL string            `json:"processing_url"`
	MethodName    string            `json:"method_name"`
	WrappedToJSON bool              `json:"wrapped_to_json"`
	ShowQROnForm  bool              `json:"show_qr_on_form"`
	// Code is the payer-entered secure code for confirm_secure_code.
	Code string `json:"code"`
}

// PlatformParams nests the same sections as the top level.
type PlatformParams struct {
	Settings *PlatformSettings `json:"settings"`
	Customer *PlatformCustomer `json:"customer"`
	Payment  *PlatformPayment  `json:"payment"`
	Code     string            `json:"code"`
	Extra    map[string]any    `json:"extra"`
}

// PlatformSettings carries per-call provider settings.
type PlatformSettings struct {
	Provider           string `json:"provider"`
	AuthorizationToken string `json:"authorization_token"`
	PaymentMethod      string `json:"payment_method"`
	Method             string `json:"method"`
	WrappedToJSON      bool   `json:"wrapped_to_json"`
	ShowQROnForm       bool   `json:"show_qr_on_form"`
}

// PlatformCustomer identifies the payer.
type PlatformCustomer struct {
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}

// PlatformPayment describes the payment itself.
type PlatformPayment struct {
	Token              string       `json:"token"`
	GatewayToken       string       `json:"gateway_token"`
	OrderNumber        string       `json:"order_number"`
	Product            string       `json:"product"`
	Amount             *json.Number `json:"amount"`
	Currency           string       `json:"currency"`
	RedirectSuccessURL string       `json:"redirect_success_url"`
	RedirectFailURL    string       `json:"redirect_fail_url"`
	PaymentMethod      string       `json:"paymentMethod"`
}

// FieldError reports a missing or invalid request field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func required(field string) *FieldError {
	return &FieldError{Field: field, Reason: "is required"}
}

func (r *PlatformRequest) settings() PlatformSettings {
	if r.Params != nil && r.Params.Settings != nil {
		return *r.Params.Settings
	}
	if r.Settings != nil {
		return *r.Settings
	}
	return PlatformSettings{}
}

func (r *PlatformRequest) customer() PlatformCustomer {
	if r.Params != nil && r.Params.Customer != nil {
		return *r.Params.Customer
	}
	if r.Customer != nil {
		return *r.Customer
	}
	return PlatformCustomer{}
}

func (r *PlatformRequest) payment() *PlatformPayment {
	if r.Params != nil && r.Params.Payment != nil {
		return r.Params.Payment
	}
	return r.Payment
}

// ProviderName is the explicitly requested provider, if any.
func (r *PlatformRequest) ProviderName() string {
	if r.Settings != nil && r.Settings.Provider != "" {
		return r.Settings.Provider
	}
	return r.settings().Provider
}

// PaymentMethod is the method used for provider routing.
func (r *PlatformRequest) PaymentMethod() string {
	if p := r.payment(); p != nil {
		return p.PaymentMethod
	}
	return ""
}

// AuthorizationToken is the per-call provider credential override.
func (r *PlatformRequest) AuthorizationToken() string {
	return r.settings().AuthorizationToken
}

// SecureCode returns the payer-entered code.
func (r *PlatformRequest) SecureCode() string {
	if r.Params != nil && r.Params.Code != "" {
		return r.Params.Code
	}
	return r.Code
}

// Extra returns the free-form interaction parameters.
func (r *PlatformRequest) Extra() map[string]any {
	if r.Params != nil && r.Params.Extra != nil {
		return r.Params.Extra
	}
	return map[string]any{}
}

// LookupKey returns the correlation key in priority order
// gateway_token, token, order_number. byOperationID is set for gateway_token.
func (r *PlatformRequest) LookupKey() (key string, byOperationID bool) {
	p := r.payment()
	if p == nil {
		return "", false
	}
	switch {
	case p.GatewayToken != "":
		return p.GatewayToken, true
	case p.Token != "":
		return p.Token, false
	default:
		return p.OrderNumber, false
	}
}

// RefundAmount returns the requested amount, zero when absent or unparseable.
func (r *PlatformRequest) RefundAmount() int64 {
	p := r.payment()
	if p == nil || p.Amount == nil {
		return 0
	}
	amount, err := parseAmount(*p.Amount)
	if err != nil {
		return 0
	}
	return amount
}

// ToPayRequest validates a pay or payout body and converts it for adapters.
func (r *PlatformRequest) ToPayRequest() (*provider.PayRequest, error) {
	p := r.payment()
	switch {
	case p == nil || p.OrderNumber == "":
		return nil, required("payment.order_number")
	case p.Amount == nil:
		return nil, required("payment.amount")
	case p.Currency == "":
		return nil, required("payment.currency")
	case r.CallbackURL == "":
		return nil, required("callback_url")
	case p.Token == "":
		return nil, required("payment.token")
	}

	amount, err := parseAmount(*p.Amount)
	if err != nil {
		return nil, &FieldError{Field: "payment.amount", Reason: "must be an integer"}
	}
	return r.payRequest(p, amount), nil
}

// ToPayoutRequest converts a payout body without enforcing pay's required fields.
func (r *PlatformRequest) ToPayoutRequest() *provider.PayRequest {
	p := r.payment()
	if p == nil {
		p = &PlatformPayment{}
	}
	return r.payRequest(p, r.RefundAmount())
}

func (r *PlatformRequest) payRequest(p *PlatformPayment, amount int64) *provider.PayRequest {
	s := r.settings()
	c := r.customer()
	return &provider.PayRequest{
		PlatformToken:      p.Token,
		OrderNumber:        p.OrderNumber,
		Amount:             amount,
		Currency:           p.Currency,
		CallbackURL:        r.CallbackURL,
		ProcessingURL:      r.ProcessingURL,
		RedirectSuccessURL: p.RedirectSuccessURL,
		RedirectFailURL:    p.RedirectFailURL,
		PaymentMethod:      firstNonBlank(s.PaymentMethod, s.Method, "SBP"),
		AuthorizationToken: s.AuthorizationToken,
		WrappedToJSON:      s.WrappedToJSON || r.WrappedToJSON,
		ShowQROnForm:       s.ShowQROnForm || r.ShowQROnForm,
		Customer:           provider.Customer{ClientID: c.ClientID, IP: c.ClientIP},
	}
}

// parseAmount accepts integers and integral decimals ("1000", "1000.0").
func parseAmount(n json.Number) (int64, error) {
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// AdminUpdateResponse is returned by the administrative status override.
type AdminUpdateResponse struct {
	Result            string `json:"result"`
	Token             string `json:"token"`
	NewStatus         string `json:"new_status"`
	CallbackDelivered bool   `json:"callback_delivered"`
}

// WebhookAck acknowledges a provider notification.
type WebhookAck struct {
	OK bool `json:"ok"`
}
