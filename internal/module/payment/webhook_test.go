package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gatewayconnect/server/internal/module/payment/callback"
	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"github.com/gatewayconnect/server/internal/module/payment/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type webhookFixture struct {
	service    *WebhookService
	repo       Repository
	forta      *stubAdapter
	dispatcher *MockDispatcher
}

func newWebhookFixture(t *testing.T, opts ...WebhookOption) *webhookFixture {
	t.Helper()

	f := &webhookFixture{
		repo:       NewRepository(newTestDB(t)),
		forta:      newStubAdapter(provider.FortaName),
		dispatcher: new(MockDispatcher),
	}
	registry := NewProviderRegistry("")
	registry.Register(f.forta)
	f.service = NewWebhookService(f.repo, registry, f.dispatcher, zap.NewNop(), opts...)

	seed(t, f.repo, &domain.Correlation{
		PlatformToken:       "rp-1",
		OrderNumber:         domain.Optional("ORD-1"),
		Provider:            provider.FortaName,
		ProviderOperationID: domain.Optional("g-1"),
		Status:              domain.Optional("INIT"),
		CallbackURL:         "https://platform/cb",
	})
	return f
}

func (f *webhookFixture) storedStatus(t *testing.T) string {
	t.Helper()
	record, err := f.repo.FindByKey(context.Background(), "rp-1")
	require.NoError(t, err)
	return domain.Deref(record.Status)
}

func resultMatching(result, gatewayToken string) any {
	return mock.MatchedBy(func(r *callback.Result) bool {
		return r.Result == result && domain.Deref(r.GatewayToken) == gatewayToken && r.Requisites == nil && len(r.Logs) == 0
	})
}

func TestWebhookService_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("applies status by operation id", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.forta.notification = &provider.Notification{OperationID: "g-1", RawStatus: "PAID"}
		f.dispatcher.On("Notify", mock.Anything, "https://platform/cb", resultMatching("approved", "g-1")).Return()

		require.NoError(t, f.service.Handle(ctx, "forta", []byte(`{}`), nil))
		assert.Equal(t, "PAID", f.storedStatus(t))
		f.dispatcher.AssertExpectations(t)
	})

	t.Run("falls back to order number and stored operation id", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.forta.notification = &provider.Notification{OrderNumber: "ORD-1", RawStatus: "canceled"}
		f.dispatcher.On("Notify", mock.Anything, "https://platform/cb", resultMatching("declined", "g-1")).Return()

		require.NoError(t, f.service.Handle(ctx, "forta", []byte(`{}`), nil))
		assert.Equal(t, "canceled", f.storedStatus(t))
		f.dispatcher.AssertExpectations(t)
	})

	t.Run("unmatched operation id falls back to order number", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.forta.notification = &provider.Notification{OperationID: "g-new", OrderNumber: "ORD-1", RawStatus: "PAID"}
		f.dispatcher.On("Notify", mock.Anything, "https://platform/cb", resultMatching("approved", "g-new")).Return()

		require.NoError(t, f.service.Handle(ctx, "forta", []byte(`{}`), nil))
		f.dispatcher.AssertExpectations(t)
	})

	t.Run("empty status is stored as unknown", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.forta.notification = &provider.Notification{OperationID: "g-1"}
		f.dispatcher.On("Notify", mock.Anything, mock.Anything, resultMatching("pending", "g-1")).Return()

		require.NoError(t, f.service.Handle(ctx, "forta", []byte(`{}`), nil))
		assert.Equal(t, "unknown", f.storedStatus(t))
	})

	t.Run("unknown order is acknowledged without a callback", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.forta.notification = &provider.Notification{OperationID: "g-9", OrderNumber: "ORD-9", RawStatus: "PAID"}

		require.NoError(t, f.service.Handle(ctx, "forta", []byte(`{}`), nil))
		assert.Equal(t, "INIT", f.storedStatus(t))
		f.dispatcher.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid signature leaves the record untouched", func(t *testing.T) {
		f := newWebhookFixture(t)
		f.forta.parseErr = provider.ErrInvalidSignature

		err := f.service.Handle(ctx, "forta", []byte(`{}`), nil)
		assert.ErrorIs(t, err, provider.ErrInvalidSignature)
		assert.Equal(t, "INIT", f.storedStatus(t))
		f.dispatcher.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("ignored event", func(t *testing.T) {
		f := newWebhookFixture(t)

		require.NoError(t, f.service.Handle(ctx, "forta", []byte(`{}`), nil))
		f.dispatcher.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := newWebhookFixture(t)

		err := f.service.Handle(ctx, "paypal", []byte(`{}`), nil)
		assert.ErrorIs(t, err, ErrProviderNotFound)
	})
}

func TestWebhookService_ReplayGuard(t *testing.T) {
	ctx := context.Background()
	body := []byte(`{"guid":"g-1","status":"PAID"}`)

	t.Run("duplicate body is acknowledged without processing", func(t *testing.T) {
		guard := new(MockReplayGuard)
		guard.On("FirstSeen", mock.Anything, replayKey(provider.FortaName, body), 5*time.Minute).Return(false, nil)
		f := newWebhookFixture(t, WithReplayGuard(guard, 5*time.Minute))
		f.forta.notification = &provider.Notification{OperationID: "g-1", RawStatus: "PAID"}

		require.NoError(t, f.service.Handle(ctx, "forta", body, nil))
		assert.Equal(t, "INIT", f.storedStatus(t))
		guard.AssertExpectations(t)
	})

	t.Run("first delivery is processed", func(t *testing.T) {
		guard := new(MockReplayGuard)
		guard.On("FirstSeen", mock.Anything, mock.Anything, defaultReplayTTL).Return(true, nil)
		f := newWebhookFixture(t, WithReplayGuard(guard, 0))
		f.forta.notification = &provider.Notification{OperationID: "g-1", RawStatus: "PAID"}
		f.dispatcher.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return()

		require.NoError(t, f.service.Handle(ctx, "forta", body, nil))
		assert.Equal(t, "PAID", f.storedStatus(t))
	})

	t.Run("guard failure does not block processing", func(t *testing.T) {
		guard := new(MockReplayGuard)
		guard.On("FirstSeen", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
		f := newWebhookFixture(t, WithReplayGuard(guard, time.Minute))
		f.forta.notification = &provider.Notification{OperationID: "g-1", RawStatus: "PAID"}
		f.dispatcher.On("Notify", mock.Anything, mock.Anything, mock.Anything).Return()

		require.NoError(t, f.service.Handle(ctx, "forta", body, nil))
		assert.Equal(t, "PAID", f.storedStatus(t))
	})
}

// memoryReplayGuard is an in-process ReplayGuard.
type memoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryReplayGuard() *memoryReplayGuard {
	return &memoryReplayGuard{seen: make(map[string]bool)}
}

func (g *memoryReplayGuard) FirstSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *memoryReplayGuard) Forget(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}

// flakyRepository fails the first n status updates.
type flakyRepository struct {
	Repository
	failures int
}

func (r *flakyRepository) UpdateStatus(ctx context.Context, token, status string) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("db down")
	}
	return r.Repository.UpdateStatus(ctx, token, status)
}

func TestWebhookService_RetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	body := []byte(`{"guid":"g-1","status":"PAID"}`)

	f := newWebhookFixture(t)
	registry := NewProviderRegistry("")
	registry.Register(f.forta)
	f.forta.notification = &provider.Notification{OperationID: "g-1", RawStatus: "PAID"}
	f.dispatcher.On("Notify", mock.Anything, "https://platform/cb", resultMatching("approved", "g-1")).Return().Once()

	guard := newMemoryReplayGuard()
	service := NewWebhookService(&flakyRepository{Repository: f.repo, failures: 1}, registry, f.dispatcher,
		zap.NewNop(), WithReplayGuard(guard, time.Minute))

	err := service.Handle(ctx, "forta", body, nil)
	require.ErrorContains(t, err, "db down")
	assert.Equal(t, "INIT", f.storedStatus(t))
	f.dispatcher.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything, mock.Anything)

	require.NoError(t, service.Handle(ctx, "forta", body, nil))
	assert.Equal(t, "PAID", f.storedStatus(t))
	f.dispatcher.AssertExpectations(t)

	t.Run("applied delivery stays marked", func(t *testing.T) {
		require.NoError(t, service.Handle(ctx, "forta", body, nil))
		f.dispatcher.AssertNumberOfCalls(t, "Notify", 1)
	})
}

func TestWebhookService_ReleaseFailure(t *testing.T) {
	body := []byte(`{"guid":"g-1"}`)
	f := newWebhookFixture(t)
	registry := NewProviderRegistry("")
	registry.Register(f.forta)
	f.forta.notification = &provider.Notification{OperationID: "g-1", RawStatus: "PAID"}

	guard := new(MockReplayGuard)
	key := replayKey(provider.FortaName, body)
	guard.On("FirstSeen", mock.Anything, key, time.Minute).Return(true, nil)
	guard.On("Forget", mock.Anything, key).Return(errors.New("redis down"))

	service := NewWebhookService(&flakyRepository{Repository: f.repo, failures: 1}, registry, f.dispatcher,
		zap.NewNop(), WithReplayGuard(guard, time.Minute))

	err := service.Handle(context.Background(), "forta", body, nil)
	assert.ErrorContains(t, err, "db down")
	guard.AssertExpectations(t)
}
