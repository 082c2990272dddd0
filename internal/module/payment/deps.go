package payment

import (
	"context"
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/callback"
)

// CallbackDispatcher delivers platform callbacks.
// It is defined here, at the consumer, and satisfied by *callback.Dispatcher.
type CallbackDispatcher interface {
	// Notify sends a scheme B result in the background.
	Notify(ctx context.Context, url string, result *callback.Result)
	// Deliver sends a scheme A transaction callback and reports the outcome.
	Deliver(ctx context.Context, url string, tx *callback.Transaction) error
}

// ReplayGuard remembers processed webhook bodies.
type ReplayGuard interface {
	// FirstSeen records key and reports whether it was unseen within ttl.
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget releases key so a retried delivery is processed again.
	Forget(ctx context.Context, key string) error
}
