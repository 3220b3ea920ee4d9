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

func post(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/cart/add", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(NewLimiter(5, time.Minute), RateLimitConfig{})(okHandler())

	for i := range 5 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, post("192.168.1.1:12345"))

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(NewLimiter(2, time.Minute), RateLimitConfig{})(okHandler())

	for range 2 {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, post("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, post("10.0.0.1:9999"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestRateLimit_SafeMethodsPassThrough(t *testing.T) {
	handler := RateLimit(NewLimiter(1, time.Minute), RateLimitConfig{})(okHandler())

	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/products", nil)
		req.RemoteAddr = "10.0.0.1:9999"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimit_CustomMethods(t *testing.T) {
	handler := RateLimit(NewLimiter(1, time.Minute), RateLimitConfig{
		Methods: []string{http.MethodGet},
	})(okHandler())

	req := func() *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1"
		return r
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req())
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(NewLimiter(1, time.Minute), RateLimitConfig{})(okHandler())

	w1 := httptest.NewRecorder()
	handler.ServeHTTP(w1, post("10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	handler.ServeHTTP(w2, post("10.0.0.2:1234"))
	assert.Equal(t, http.StatusOK, w2.Code)

	w3 := httptest.NewRecorder()
	handler.ServeHTTP(w3, post("10.0.0.1:5678"))
	assert.Equal(t, http.StatusTooManyRequests, w3.Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := RateLimit(NewLimiter(1, time.Minute), RateLimitConfig{
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-Session")
		},
	})(okHandler())

	send := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("X-Session", key)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"))
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(4, time.Minute)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	for range 4 {
		require.True(t, l.Allow("k", base.Add(10*time.Second)).Allowed)
	}
	assert.False(t, l.Allow("k", base.Add(50*time.Second)).Allowed)

	// Halfway through the next window half of the previous count still
	// weighs in: 4*0.5 = 2 of 4 used.
	next := base.Add(90 * time.Second)
	d := l.Allow("k", next)
	require.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.True(t, l.Allow("k", next).Allowed)
	assert.False(t, l.Allow("k", next).Allowed)

	// Two windows later everything is forgotten.
	d = l.Allow("k", base.Add(4*time.Minute))
	require.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)
}

func TestLimiter_Cleanup(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	l.Allow("old", base)
	l.Allow("new", base.Add(2*time.Minute))

	l.Cleanup(base.Add(2*time.Minute + time.Second))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.keys, "old")
	assert.Contains(t, l.keys, "new")
}

func TestLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewLimiter(1, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "forwarded list", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, remote: "10.0.0.1:1", want: "203.0.113.50"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "10.0.0.1:1", want: "198.51.100.7"},
		{name: "no port", remote: "unix", want: "unix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
