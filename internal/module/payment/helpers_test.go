package payment

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/callback"
	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/module/payment/provider"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestDB opens an isolated in-memory SQLite database with the correlation table.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

var stubVocabulary = domain.NewVocabulary(
	[]string{"paid", "success"},
	[]string{"failed", "canceled"},
	[]string{"refunded"},
)

// stubAdapter is a scripted provider adapter that records what it was asked.
type stubAdapter struct {
	name string

	payResponse    *domain.PayResponse
	payErr         error
	statusResponse *domain.StatusResponse
	notification   *provider.Notification
	parseErr       error

	lastPay         *provider.PayRequest
	lastStatus      *provider.StatusRequest
	lastRefund      *provider.RefundRequest
	lastInteraction *provider.InteractionRequest
	interactions    []string
}

func newStubAdapter(name string) *stubAdapter {
	return &stubAdapter{name: name}
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Pay(_ context.Context, req *provider.PayRequest) (*domain.PayResponse, error) {
	a.lastPay = req
	if a.payErr != nil {
		return nil, a.payErr
	}
	if a.payResponse != nil {
		return a.payResponse, nil
	}
	resp := domain.NewPayResponse(domain.StatusPending)
	resp.GatewayToken = domain.Optional("op-" + req.PlatformToken)
	return resp, nil
}

func (a *stubAdapter) Status(_ context.Context, req *provider.StatusRequest) *domain.StatusResponse {
	a.lastStatus = req
	if a.statusResponse != nil {
		return a.statusResponse
	}
	if req.Record.OperationID() == "" {
		return domain.PendingStatus("no operation id in mapping")
	}
	return &domain.StatusResponse{
		Result:  domain.ResultOK,
		Status:  a.NormalizeStatus(domain.Deref(req.Record.Status)),
		Details: "Transaction status: " + domain.Deref(req.Record.Status),
		Logs:    []domain.LogEntry{},
	}
}

func (a *stubAdapter) Refund(_ context.Context, req *provider.RefundRequest) *domain.StatusResponse {
	a.lastRefund = req
	return &domain.StatusResponse{Result: domain.ResultOK, Status: domain.StatusRefunded, Logs: []domain.LogEntry{}}
}

func (a *stubAdapter) Payout(context.Context, *provider.PayRequest) *domain.StatusResponse {
	return domain.Unsupported("Payout not implemented for this provider")
}

func (a *stubAdapter) ConfirmSecureCode(_ context.Context, req *provider.InteractionRequest) *domain.StatusResponse {
	return a.interact("confirm_secure_code", req)
}

func (a *stubAdapter) ResendOTP(_ context.Context, req *provider.InteractionRequest) *domain.StatusResponse {
	return a.interact("resend_otp", req)
}

func (a *stubAdapter) NextPaymentStep(_ context.Context, req *provider.InteractionRequest) *domain.StatusResponse {
	return a.interact("next_payment_step", req)
}

func (a *stubAdapter) interact(op string, req *provider.InteractionRequest) *domain.StatusResponse {
	a.lastInteraction = req
	a.interactions = append(a.interactions, op)
	return domain.PendingStatus(op)
}

func (a *stubAdapter) NormalizeStatus(raw string) domain.Status {
	return stubVocabulary.Normalize(raw)
}

func (a *stubAdapter) ParseNotification([]byte, http.Header) (*provider.Notification, error) {
	return a.notification, a.parseErr
}

// MockDispatcher is a mock implementation of CallbackDispatcher.
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Notify(ctx context.Context, url string, result *callback.Result) {
	m.Called(ctx, url, result)
}

func (m *MockDispatcher) Deliver(ctx context.Context, url string, tx *callback.Transaction) error {
	args := m.Called(ctx, url, tx)
	return args.Error(0)
}

// MockReplayGuard is a mock implementation of ReplayGuard.
type MockReplayGuard struct {
	mock.Mock
}

func (m *MockReplayGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockReplayGuard) Forget(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// seed stores a correlation record directly.
func seed(t *testing.T, repo Repository, c *domain.Correlation) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), c))
}
