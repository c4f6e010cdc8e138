package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"appointments/internal/pkg/logger"
	"appointments/internal/pkg/metrics"
)

func newObservedLogger() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logger.NewFromZap(zap.New(core)), logs
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, requestID(c)) })

	rr := serve(r, http.MethodGet, "/", map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
	assert.Equal(t, "abc-123", rr.Body.String())

	rr = serve(r, http.MethodGet, "/", nil)
	generated := rr.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, rr.Body.String())
}

func TestErrorLogger_RecoversPanicWithGenericBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, logs := newObservedLogger()

	r := gin.New()
	r.Use(RequestID(), ErrorLogger(log))
	r.GET("/boom", func(c *gin.Context) { panic("secret dsn postgres://u:p@db") })

	rr := serve(r, http.MethodGet, "/boom", map[string]string{RequestIDHeader: "req-1"})
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rr.Body.String(), "postgres://")
	assert.NotContains(t, rr.Body.String(), "goroutine")

	entries := logs.FilterMessage("request failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "panic", fields["type"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Contains(t, fields["error"], "secret dsn")
	assert.NotEmpty(t, fields["stack"])
}

func TestErrorLogger_LogsAttachedErrorsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log, logs := newObservedLogger()

	r := gin.New()
	r.Use(ErrorLogger(log))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("appointment store: list: begin: connection refused"))
		c.Status(http.StatusInternalServerError)
	})

	serve(r, http.MethodGet, "/ok", nil)
	assert.Zero(t, logs.Len())

	serve(r, http.MethodGet, "/fail", nil)
	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "request_error", entries[0].ContextMap()["type"])
	assert.Equal(t, int64(http.StatusInternalServerError), entries[0].ContextMap()["status"])
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := serve(r, http.MethodGet, "/", nil)
	assert.Equal(t, "default-src 'self'", rr.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rr.Header().Get("Referrer-Policy"))
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://app.example"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := serve(r, http.MethodGet, "/", map[string]string{"Origin": "https://app.example"})
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(r, http.MethodGet, "/", map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))

	rr = serve(r, http.MethodOptions, "/", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New("test")
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/appointments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/appointments/1", nil)
	serve(r, http.MethodGet, "/appointments/2", nil)
	serve(r, http.MethodGet, "/nope", nil)

	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDuration))
}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i, want := range []bool{true, true, false, false} {
		ok, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok, "hit %d", i+1)
	}

	ok, _ := l.Allow(ctx, "5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "1.2.3.4")
	assert.True(t, ok, "new window")
}

func TestRateLimit_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(NewMemoryLimiter(1, time.Minute), logger.Nop(), true))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusCreated) })

	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/", nil).Code)
	rr := serve(r, http.MethodPost, "/", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Contains(t, rr.Body.String(), "RATE_LIMITED")
}

func TestRateLimit_RedisUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	limiter := NewRedisLimiter(rdb, 10, time.Minute, "test")

	cases := map[bool]int{true: http.StatusOK, false: http.StatusServiceUnavailable}
	for failOpen, want := range cases {
		log, logs := newObservedLogger()
		r := gin.New()
		r.Use(RateLimit(limiter, log, failOpen))
		r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		rr := serve(r, http.MethodPost, "/", nil)
		assert.Equal(t, want, rr.Code, "failOpen=%v", failOpen)
		assert.Equal(t, 1, logs.FilterMessage("rate limiter error").Len())
	}
}

func TestMetrics_RecordsRecoveredPanics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := metrics.New("test")
	r := gin.New()
	r.Use(Metrics(m), ErrorLogger(logger.Nop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rr := serve(r, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}
