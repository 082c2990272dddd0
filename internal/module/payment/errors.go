package payment

import "errors"

// Module errors.
var (
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUnknownToken        = errors.New("unknown token")
	ErrMissingLookupKey    = errors.New("gateway_token or payment.token or payment.order_number is required")
)
