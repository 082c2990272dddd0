package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/shared/logger"
	"github.com/gatewayconnect/server/internal/shared/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// TransportError reports that a provider could not be reached or its circuit is open.
type TransportError struct {
	Provider  string
	Operation string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is a provider transport failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// BreakerSettings configures the per-provider circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
}

// ClientOptions configures the shared outbound client of an adapter.
type ClientOptions struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Breaker    BreakerSettings
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

var errNotJSON = errors.New("response body is not JSON")

// apiResponse is a provider answer that arrived over HTTP.
type apiResponse struct {
	StatusCode int
	// Decoded is the JSON body, or {"raw_text": body} when it is not JSON.
	Decoded any
	IsJSON  bool
	raw     []byte
}

func (r *apiResponse) ok() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// unmarshal decodes the body into v.
func (r *apiResponse) unmarshal(v any) error {
	if !r.IsJSON {
		return errNotJSON
	}
	return json.Unmarshal(r.raw, v)
}

// apiClient performs provider calls with a fixed timeout behind a circuit breaker.
// Provider calls are never retried: a repeated creation call could double-charge.
type apiClient struct {
	name    string
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[*resty.Response]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func newAPIClient(name string, opts ClientOptions) *apiClient {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("provider", name))

	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rc.SetBaseURL(opts.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	threshold := opts.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	m := opts.Metrics
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: opts.Breaker.HalfOpenRequests,
		Timeout:     opts.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
	}

	return &apiClient{
		name:    name,
		http:    rc,
		breaker: gobreaker.NewCircuitBreaker[*resty.Response](settings),
		metrics: m,
		logger:  log,
	}
}

// call is one outbound provider request.
type call struct {
	operation string
	method    string
	path      string
	headers   map[string]string
	query     map[string]string
	body      any
}

// do executes c. Only transport failures are returned as errors; any HTTP
// status, including 5xx, comes back as an apiResponse.
func (c *apiClient) do(ctx context.Context, cl call) (*apiResponse, error) {
	start := time.Now()
	log := logger.WithRequest(ctx, c.logger).With(
		zap.String("operation", cl.operation),
		zap.String("path", cl.path),
	)

	resp, err := c.breaker.Execute(func() (*resty.Response, error) {
		req := c.http.R().SetContext(ctx).SetHeaders(cl.headers)
		if cl.query != nil {
			req.SetQueryParams(cl.query)
		}
		if cl.body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(cl.body)
		}
		return req.Execute(cl.method, cl.path)
	})
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordProviderCall(c.name, cl.operation, "transport_error", elapsed)
		log.Warn("provider unreachable", zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, &TransportError{Provider: c.name, Operation: cl.operation, Err: err}
	}

	out := &apiResponse{StatusCode: resp.StatusCode(), raw: resp.Body()}
	out.Decoded, out.IsJSON = decodeBody(out.raw)

	outcome := "ok"
	if !out.ok() {
		outcome = "http_error"
	}
	c.metrics.RecordProviderCall(c.name, cl.operation, outcome, elapsed)
	log.Info("provider call",
		zap.Int("status", out.StatusCode),
		zap.Duration("elapsed", elapsed),
	)
	return out, nil
}

// url returns the absolute URL of path, for log entries.
func (c *apiClient) url(path string) string {
	return c.http.BaseURL + path
}

func decodeBody(b []byte) (any, bool) {
	if len(bytes.TrimSpace(b)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err == nil {
			return v, true
		}
	}
	return map[string]any{"raw_text": string(b)}, false
}

// transportLog builds the log entry recorded when no HTTP answer was received.
func transportLog(gateway, url string, params any, kind string, err error) domain.LogEntry {
	return domain.LogEntry{
		Gateway:  gateway,
		Request:  domain.LogRequest{URL: url, Params: params},
		Status:   domain.TransportErrorStatus,
		Response: map[string]any{"error": err.Error()},
		Kind:     kind,
	}
}

// responseLog builds the log entry for an HTTP answer.
func responseLog(gateway, url string, params any, kind string, resp *apiResponse) domain.LogEntry {
	return domain.LogEntry{
		Gateway:  gateway,
		Request:  domain.LogRequest{URL: url, Params: params},
		Status:   resp.StatusCode,
		Response: resp.Decoded,
		Kind:     kind,
	}
}
