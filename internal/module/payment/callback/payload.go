package callback

// Scheme names a callback signing scheme.
type Scheme string

const (
	// SchemeJWT is the transaction callback: HS512 bearer plus an encrypted secure block.
	SchemeJWT Scheme = "jwt"
	// SchemeHMAC is the result notification signed with an HMAC header.
	SchemeHMAC Scheme = "hmac"
)

// Result is the scheme B notification body.
type Result struct {
	Result       string  `json:"result"`
	GatewayToken *string `json:"gateway_token"`
	Logs         []any   `json:"logs"`
	Requisites   any     `json:"requisites"`
}

// NewResult returns a result notification with empty logs and null requisites.
func NewResult(result string, gatewayToken *string) *Result {
	return &Result{Result: result, GatewayToken: gatewayToken, Logs: []any{}}
}

// SecureBlock is the encrypted part of a scheme A callback.
type SecureBlock struct {
	Status   string  `json:"status"`
	Amount   *int64  `json:"amount"`
	Currency *string `json:"currency"`
}

// Transaction is the scheme A callback body.
type Transaction struct {
	Token        string  `json:"token"`
	GatewayToken *string `json:"gateway_token"`
	Status       string  `json:"status"`
	Currency     *string `json:"currency"`
	Amount       *int64  `json:"amount"`
	Secure       string  `json:"secure"`
}
