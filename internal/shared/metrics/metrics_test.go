package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// createTestMetrics registers on a private registry so tests do not collide.
func createTestMetrics() *Metrics {
	return New("test", prometheus.NewRegistry())
}

func TestNew(t *testing.T) {
	t.Run("creates all collectors", func(t *testing.T) {
		m := createTestMetrics()
		assert.NotNil(t, m.HTTPRequestsTotal)
		assert.NotNil(t, m.ProviderCallsTotal)
		assert.NotNil(t, m.CallbackDeliveriesTotal)
		assert.NotNil(t, m.WebhooksTotal)
	})

	t.Run("separate registries do not conflict", func(t *testing.T) {
		assert.NotPanics(t, func() {
			createTestMetrics()
			createTestMetrics()
		})
	})
}

func TestMetrics_RecordHTTPRequest(t *testing.T) {
	m := createTestMetrics()

	m.RecordHTTPRequest("POST", "/pay", 200, 100*time.Millisecond)
	m.RecordHTTPRequest("POST", "/status", 404, 10*time.Millisecond)
	m.RecordHTTPRequest("POST", "/pay", 503, 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/pay", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/status", "4xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/pay", "5xx")))
}

func TestMetrics_RecordProviderCall(t *testing.T) {
	m := createTestMetrics()

	m.RecordProviderCall("Brusnika_SBP", "pay", "ok", time.Second)
	m.RecordProviderCall("Brusnika_SBP", "pay", "transport_error", time.Second)
	m.RecordProviderCall("Brusnika_SBP", "pay", "ok", time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("Brusnika_SBP", "pay", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("Brusnika_SBP", "pay", "transport_error")))
}

func TestMetrics_SetBreakerOpen(t *testing.T) {
	m := createTestMetrics()

	m.SetBreakerOpen("Forta_SBP_ECOM", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderBreakerState.WithLabelValues("Forta_SBP_ECOM")))

	m.SetBreakerOpen("Forta_SBP_ECOM", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ProviderBreakerState.WithLabelValues("Forta_SBP_ECOM")))
}

func TestMetrics_WebhooksAndCallbacks(t *testing.T) {
	m := createTestMetrics()

	m.RecordWebhook("Forta_SBP_ECOM", "rejected")
	m.RecordCallback("hmac", "delivered")
	m.RecordCallback("hmac", "delivered")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhooksTotal.WithLabelValues("Forta_SBP_ECOM", "rejected")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CallbackDeliveriesTotal.WithLabelValues("hmac", "delivered")))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
		m.RecordProviderCall("x", "pay", "ok", time.Millisecond)
		m.SetBreakerOpen("x", true)
		m.RecordWebhook("x", "applied")
		m.RecordCallback("jwt", "failed")
	})
}

func TestStatusCodeToString(t *testing.T) {
	tests := []struct {
		code     int
		expected string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{401, "4xx"},
		{599, "5xx"},
		{100, "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, statusCodeToString(tt.code))
	}
}
