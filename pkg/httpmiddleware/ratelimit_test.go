package httpmiddleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(2, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	remaining, reset, ok := l.Allow("a", now)
	require.True(t, ok)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, now.Add(time.Minute), reset)

	_, _, ok = l.Allow("a", now.Add(time.Second))
	require.True(t, ok)
	_, _, ok = l.Allow("a", now.Add(2*time.Second))
	assert.False(t, ok, "over budget")

	_, _, ok = l.Allow("b", now.Add(2*time.Second))
	assert.True(t, ok, "keys are independent")

	// Half way into the next window the previous one still weighs 50%.
	_, _, ok = l.Allow("a", now.Add(90*time.Second))
	assert.True(t, ok)
	_, _, ok = l.Allow("a", now.Add(90*time.Second))
	assert.False(t, ok)

	_, _, ok = l.Allow("a", now.Add(10*time.Minute))
	assert.True(t, ok, "stale windows are forgotten")
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.Allow("a", now)

	l.Sweep(now.Add(time.Minute))
	assert.Len(t, l.byKey, 1)
	l.Sweep(now.Add(2 * time.Minute))
	assert.Empty(t, l.byKey)
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimit(ctx, RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", " 10.0.0.3 , 10.0.0.4")
	assert.Equal(t, "10.0.0.3", ClientIP(req))
}
