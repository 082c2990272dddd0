package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gatewayconnect/server/internal/shared/metrics"
	"github.com/gatewayconnect/server/internal/utils/requestctx"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequestID(t *testing.T) {
	t.Run("generates new request ID when not provided", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			assert.Equal(t, GetRequestID(c), requestctx.RequestID(c.Request.Context()))
			c.String(http.StatusOK, GetRequestID(c))
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		headerID := w.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, headerID)
		assert.Equal(t, headerID, w.Body.String())
	})

	t.Run("uses existing request ID from header", func(t *testing.T) {
		router := gin.New()
		router.Use(RequestID())
		router.GET("/test", func(c *gin.Context) {
			c.String(http.StatusOK, GetRequestID(c))
		})

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "existing-request-id-123")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "existing-request-id-123", w.Header().Get(RequestIDHeader))
		assert.Equal(t, "existing-request-id-123", w.Body.String())
	})
}

func TestLogging(t *testing.T) {
	t.Run("logs level by status class", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		router := gin.New()
		router.Use(RequestID(), Logging(zap.New(core)))
		router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
		router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
		router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

		for _, path := range []string{"/ok", "/missing", "/boom"} {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
		}

		entries := logs.All()
		require.Len(t, entries, 3)
		assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
		assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
		assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
	})

	t.Run("omits query on admin routes", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		router := gin.New()
		router.Use(Logging(zap.New(core)))
		router.POST("/admin", AdminSecret("s3cret", ""), func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest("POST", "/admin?token=abc&new_status=paid", nil)
		req.Header.Set(AdminSecretHeader, "s3cret")
		router.ServeHTTP(httptest.NewRecorder(), req)

		entries := logs.All()
		require.Len(t, entries, 1)
		assert.NotContains(t, entries[0].ContextMap(), "query")
	})
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.GET("/panic", func(c *gin.Context) { panic("test panic") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "test panic", logs.All()[0].ContextMap()["error"])
}

func TestAdminSecret(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		secret   string
		hash     string
		header   string
		expected int
	}{
		{"matching plain secret", "s3cret", "", "s3cret", http.StatusOK},
		{"wrong plain secret", "s3cret", "", "nope", http.StatusForbidden},
		{"missing header", "s3cret", "", "", http.StatusForbidden},
		{"unset secret denies", "", "", "anything", http.StatusForbidden},
		{"matching bcrypt hash", "", string(hash), "hashed-secret", http.StatusOK},
		{"hash takes precedence", "s3cret", string(hash), "s3cret", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/admin", AdminSecret(tt.secret, tt.hash), func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest("POST", "/admin", nil)
			if tt.header != "" {
				req.Header.Set(AdminSecretHeader, tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestMetrics(t *testing.T) {
	m := metrics.New("test", prometheus.NewRegistry())
	router := gin.New()
	router.Use(Metrics(m))
	router.POST("/pay", func(c *gin.Context) { c.Status(http.StatusOK) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/pay", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/nowhere", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/pay", "2xx")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "4xx")))
}

func TestIdempotency(t *testing.T) {
	t.Run("passes through without redis", func(t *testing.T) {
		calls := 0
		router := gin.New()
		router.POST("/pay", Idempotency(nil, IdempotencyConfig{}), func(c *gin.Context) {
			calls++
			c.JSON(http.StatusOK, gin.H{"n": calls})
		})

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("POST", "/pay", strings.NewReader(`{}`))
			req.Header.Set(IdempotencyKeyHeader, "k1")
			router.ServeHTTP(httptest.NewRecorder(), req)
		}
		assert.Equal(t, 2, calls)
	})

	t.Run("replays stored response from redis", func(t *testing.T) {
		addr := os.Getenv("GATEWAY_TEST_REDIS_ADDR")
		if addr == "" {
			t.Skip("GATEWAY_TEST_REDIS_ADDR not set")
		}
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		defer client.Close()
		require.NoError(t, client.Ping(context.Background()).Err())

		calls := 0
		router := gin.New()
		router.POST("/pay", Idempotency(client, IdempotencyConfig{}), func(c *gin.Context) {
			calls++
			c.JSON(http.StatusOK, gin.H{"n": calls})
		})

		key := uuid.NewString()
		var bodies []string
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("POST", "/pay", strings.NewReader(`{"a":1}`))
			req.Header.Set(IdempotencyKeyHeader, key)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			bodies = append(bodies, w.Body.String())
		}

		assert.Equal(t, 1, calls)
		assert.Equal(t, bodies[0], bodies[1])
	})

	t.Run("in-flight key answers conflict", func(t *testing.T) {
		addr := os.Getenv("GATEWAY_TEST_REDIS_ADDR")
		if addr == "" {
			t.Skip("GATEWAY_TEST_REDIS_ADDR not set")
		}
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		defer client.Close()
		ctx := context.Background()
		require.NoError(t, client.Ping(ctx).Err())

		body := `{"a":2}`
		key := uuid.NewString()
		bodySum := sha256.Sum256([]byte(body))
		keySum := sha256.Sum256([]byte("POST:/pay:" + key + ":" + hex.EncodeToString(bodySum[:])))
		lockKey := idempotencyKeyPrefix + hex.EncodeToString(keySum[:]) + ":lock"
		require.NoError(t, client.Set(ctx, lockKey, "1", time.Minute).Err())
		defer client.Del(ctx, lockKey)

		called := false
		router := gin.New()
		router.POST("/pay", Idempotency(client, IdempotencyConfig{}), func(c *gin.Context) {
			called = true
		})

		req := httptest.NewRequest("POST", "/pay", strings.NewReader(body))
		req.Header.Set(IdempotencyKeyHeader, key)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{"error":{"code":"CONFLICT","message":"A request with this idempotency key is already being processed"}}`, w.Body.String())
		assert.False(t, called)
	})
}
