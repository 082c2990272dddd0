package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Mock Implementations ---

type MockCorrelationStore struct {
	mock.Mock
}

func (m *MockCorrelationStore) Upsert(ctx context.Context, c *domain.Correlation) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

// capturedRequest is what a fake provider received.
type capturedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	Header        http.Header
	Body          map[string]any
}

// fakeProvider answers every request with status and body and records the last request.
func fakeProvider(t *testing.T, status int, body string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.Query = r.URL.RawQuery
		captured.Authorization = r.Header.Get("Authorization")
		captured.Header = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &captured.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

// unreachableURL returns the address of a server that is already closed.
func unreachableURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func strPtr(s string) *string {
	return &s
}
