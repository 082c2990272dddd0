package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gatewayconnect/server/internal/shared/logger"
	"github.com/gatewayconnect/server/internal/shared/metrics"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrRejected is returned when the platform answered with a non-2xx status.
var ErrRejected = errors.New("callback rejected by platform")

// Config configures callback delivery.
type Config struct {
	// RetryMax is the total number of attempts, including the first.
	RetryMax  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration
}

// Dispatcher delivers signed callbacks to the platform. Transport failures are
// retried with exponential backoff; a non-2xx answer is final.
type Dispatcher struct {
	http    *resty.Client
	signer  *Signer
	metrics *metrics.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewDispatcher creates a new dispatcher. hc may be nil.
func NewDispatcher(cfg Config, signer *Signer, hc *http.Client, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RetryMax < 1 {
		cfg.RetryMax = 1
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 8 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}
	rc.SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryMax - 1).
		SetRetryWaitTime(cfg.BaseDelay).
		SetRetryMaxWaitTime(cfg.MaxDelay).
		SetHeader("Content-Type", "application/json")

	return &Dispatcher{
		http:    rc,
		signer:  signer,
		metrics: m,
		logger:  log.Named("callback"),
	}
}

// Notify delivers a scheme B result in the background. The delivery outlives
// the request that triggered it; failures are logged and dropped.
func (d *Dispatcher) Notify(ctx context.Context, url string, result *Result) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.DeliverResult(ctx, url, result); err != nil {
			logger.WithRequest(ctx, d.logger).Warn("result callback dropped",
				zap.String("url", url),
				zap.Error(err),
			)
		}
	}()
}

// DeliverResult sends a scheme B result and waits for the outcome. The body is
// signed only when a real secret is configured.
func (d *Dispatcher) DeliverResult(ctx context.Context, url string, result *Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	headers := map[string]string{}
	if d.signer.Configured() {
		headers[SignatureHeader] = d.signer.SignHMAC(body)
	}
	return d.send(ctx, SchemeHMAC, url, headers, body)
}

// Deliver sends a scheme A transaction callback synchronously. The secure
// block and bearer are computed here from tx.
func (d *Dispatcher) Deliver(ctx context.Context, url string, tx *Transaction) error {
	secure, err := d.signer.EncryptSecure(SecureBlock{
		Status:   tx.Status,
		Amount:   tx.Amount,
		Currency: tx.Currency,
	})
	if err != nil {
		return err
	}
	tx.Secure = secure

	bearer, err := d.signer.SignJWT(tx)
	if err != nil {
		return fmt.Errorf("sign callback: %w", err)
	}
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	return d.send(ctx, SchemeJWT, url, map[string]string{"Authorization": "Bearer " + bearer}, body)
}

func (d *Dispatcher) send(ctx context.Context, scheme Scheme, url string, headers map[string]string, body []byte) error {
	log := logger.WithRequest(ctx, d.logger).With(
		zap.String("scheme", string(scheme)),
		zap.String("url", url),
	)
	if url == "" {
		d.metrics.RecordCallback(string(scheme), "failed")
		return errors.New("callback url is empty")
	}

	start := time.Now()
	resp, err := d.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(url)
	if err != nil {
		d.metrics.RecordCallback(string(scheme), "failed")
		log.Error("callback delivery failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return fmt.Errorf("deliver callback: %w", err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		d.metrics.RecordCallback(string(scheme), "rejected")
		log.Warn("callback rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", truncate(resp.String(), 512)),
		)
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode())
	}

	d.metrics.RecordCallback(string(scheme), "delivered")
	log.Info("callback delivered",
		zap.Int("status", resp.StatusCode()),
		zap.Int("attempts", resp.Request.Attempt),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Wait blocks until background deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
