package domain

import "encoding/json"

// Canonical envelope values.
const (
	ResultOK    = "OK"
	ResultError = "ERROR"
)

// Redirect instruction types.
const (
	RedirectPostIframes  = "post_iframes"
	RedirectURL          = "redirect"
	RedirectJSONEmbedded = "json_embedded"
)

// TransportErrorStatus is recorded in log entries when no HTTP status was received.
const TransportErrorStatus = 599

// ResponseData is the provider-specific display/debug bag. It is never nil on the wire.
type ResponseData map[string]any

// PayResponse is the canonical answer to a pay request.
// Status is always "OK": it reports that the adapter ran, not that the payment succeeded.
type PayResponse struct {
	Status               string          `json:"status"`
	GatewayToken         *string         `json:"gateway_token"`
	Result               Status          `json:"result"`
	Requisites           Requisites      `json:"requisites"`
	RedirectRequest      RedirectRequest `json:"redirectRequest"`
	WithExternalFormat   bool            `json:"with_external_format"`
	ProviderResponseData ResponseData    `json:"provider_response_data"`
	Logs                 []LogEntry      `json:"logs"`
}

// NewPayResponse returns a pay response with every collection initialised.
func NewPayResponse(result Status) *PayResponse {
	return &PayResponse{
		Status:               ResultOK,
		Result:               result,
		RedirectRequest:      NoRedirect(),
		WithExternalFormat:   true,
		ProviderResponseData: ResponseData{},
		Logs:                 []LogEntry{},
	}
}

// DeclinedPayResponse is returned when the provider could not be reached or refused to answer.
func DeclinedPayResponse(logs ...LogEntry) *PayResponse {
	resp := NewPayResponse(StatusDeclined)
	resp.Logs = append(resp.Logs, logs...)
	return resp
}

// RedirectRequest tells the platform how to present the payment to the payer.
type RedirectRequest struct {
	URL     *string  `json:"url"`
	Type    string   `json:"type"`
	Iframes []Iframe `json:"iframes"`
}

// Iframe is one embeddable frame of a post_iframes redirect.
type Iframe struct {
	URL  string     `json:"url"`
	Data IframeData `json:"data"`
}

// IframeData is posted into the QR form frame.
type IframeData struct {
	GatewayToken string `json:"gateway_token"`
	QRURL        string `json:"qr_url"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	OrderNumber  string `json:"order_number"`
}

// NoRedirect returns an empty post_iframes instruction.
func NoRedirect() RedirectRequest {
	return RedirectRequest{Type: RedirectPostIframes, Iframes: []Iframe{}}
}

// RedirectTo returns a plain redirect to url.
func RedirectTo(url string) RedirectRequest {
	return RedirectRequest{URL: &url, Type: RedirectURL, Iframes: []Iframe{}}
}

// EmbeddedJSON signals that requisites already carry the instrument inline.
func EmbeddedJSON(url string) RedirectRequest {
	r := RedirectRequest{Type: RedirectJSONEmbedded, Iframes: []Iframe{}}
	if url != "" {
		r.URL = &url
	}
	return r
}

// IframeForm returns a post_iframes instruction pointing at a hosted form.
func IframeForm(url string, frames ...Iframe) RedirectRequest {
	if frames == nil {
		frames = []Iframe{}
	}
	return RedirectRequest{URL: &url, Type: RedirectPostIframes, Iframes: frames}
}

// LogEntry records one outbound provider exchange.
type LogEntry struct {
	Gateway  string     `json:"gateway"`
	Request  LogRequest `json:"request"`
	Status   int        `json:"status"`
	Response any        `json:"response"`
	Kind     string     `json:"kind"`
}

// LogRequest is the request half of a LogEntry. Secrets in Params are masked.
type LogRequest struct {
	URL    string `json:"url"`
	Params any    `json:"params"`
}

// StatusResponse is the canonical answer to status, refund, payout and the
// interactive confirmation capabilities.
type StatusResponse struct {
	Result               string       `json:"result"`
	Status               Status       `json:"status"`
	Details              string       `json:"details"`
	Amount               *json.Number `json:"amount"`
	Currency             *string      `json:"currency"`
	Logs                 []LogEntry   `json:"logs"`
	ProviderResponseData ResponseData `json:"provider_response_data,omitempty"`
	Requisites           *Requisites  `json:"requisites,omitempty"`
}

// PendingStatus returns an OK pending status with the given details.
func PendingStatus(details string, logs ...LogEntry) *StatusResponse {
	return &StatusResponse{
		Result:  ResultOK,
		Status:  StatusPending,
		Details: details,
		Logs:    append([]LogEntry{}, logs...),
	}
}

// Unsupported returns the canonical answer for a capability a provider lacks.
func Unsupported(details string) *StatusResponse {
	return &StatusResponse{
		Result:  ResultError,
		Status:  StatusDeclined,
		Details: details,
		Logs:    []LogEntry{},
	}
}
