package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/resto-billing/internal/ratelimit"
)

func newHandler(max int64) http.Handler {
	l := limiter.New(memory.NewStore(), limiter.Rate{Period: time.Minute, Limit: max})
	return ratelimit.Handler{Limiter: l}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestMiddlewareEnforcesLimit(t *testing.T) {
	handler := newHandler(1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/preview", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)
	require.Equal(t, "0", rr1.Header().Get("X-RateLimit-Remaining"))

	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
	require.Contains(t, rr2.Body.String(), "RATE_LIMITED")
}

func TestMiddlewareKeysByClient(t *testing.T) {
	handler := newHandler(1)
	for _, addr := range []string{"192.0.2.1:1", "192.0.2.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/preview", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestMiddlewareWithoutLimiterPassesThrough(t *testing.T) {
	handler := ratelimit.Handler{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)
}

func TestNewRedisLimiterRejectsBadRate(t *testing.T) {
	_, err := ratelimit.NewRedisLimiter(nil, "lots-per-day", "rl")
	require.Error(t, err)
}
