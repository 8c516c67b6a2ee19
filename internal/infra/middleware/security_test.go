package middleware

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fsbridge/internal/domain"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	expected := map[string]string{
		"X-Frame-Options":         "DENY",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Header %s = %q, want %q", header, got, want)
		}
	}

	if hsts := w.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS header should not be set without TLS, got: %q", hsts)
	}
}

func TestSecurityHeaders_HSTS_WithTLS(t *testing.T) {
	handler := SecurityHeaders(okHandler())

	req := httptest.NewRequest("GET", "/healthz", nil)
	req.TLS = &tls.ConnectionState{}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	want := "max-age=31536000; includeSubDomains"
	if got := w.Header().Get("Strict-Transport-Security"); got != want {
		t.Errorf("HSTS = %q, want %q", got, want)
	}
}

func TestRequestID_Generated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	require.NotEmpty(t, seen)
	assert.Len(t, seen, 26)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
}

func TestRequestID_Propagated(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "caller-id-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "caller-id-1", seen)
	assert.Equal(t, "caller-id-1", w.Header().Get(RequestIDHeader))
}

func TestRequestID_Unique(t *testing.T) {
	handler := RequestID(okHandler())
	ids := make(map[string]bool)
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.False(t, ids[id], "duplicate id %s", id)
		ids[id] = true
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	handler := RateLimit(context.Background(), RateLimitConfig{})(okHandler())
	for i := 0; i < 100; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_AllowsNormalTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 10})(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Request %d: got status %d, want %d", i+1, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimit_BlocksExcessiveTraffic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 3})(okHandler())

	successCount, blockedCount := 0, 0
	var lastBlocked *httptest.ResponseRecorder
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		switch w.Code {
		case http.StatusOK:
			successCount++
		case http.StatusTooManyRequests:
			blockedCount++
			lastBlocked = w
		}
	}

	assert.Equal(t, 3, successCount)
	assert.Equal(t, 7, blockedCount)

	require.NotNil(t, lastBlocked)
	var body map[string]string
	require.NoError(t, json.Unmarshal(lastBlocked.Body.Bytes(), &body))
	assert.Equal(t, string(domain.CodeRateLimit), body["code"])
	assert.Equal(t, "1", lastBlocked.Header().Get("Retry-After"))
}

func TestRateLimit_SeparatesClientsByIP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 0.1, Burst: 2})(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	send("192.168.1.1:1000")
	send("192.168.1.1:1001")
	assert.Equal(t, http.StatusTooManyRequests, send("192.168.1.1:1002"))
	assert.Equal(t, http.StatusOK, send("192.168.1.2:1000"), "second client has its own bucket")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		xri     string
		trusted []string
		want    string
	}{
		{"direct ipv4", "10.0.0.5:1234", "", "", nil, "10.0.0.5"},
		{"direct ipv6", "[::1]:1234", "", "", nil, "::1"},
		{"spoofed xff ignored", "10.0.0.5:1234", "1.2.3.4", "", nil, "10.0.0.5"},
		{"untrusted peer ignored", "10.0.0.5:1234", "1.2.3.4", "", []string{"10.0.0.1"}, "10.0.0.5"},
		{"trusted xff first hop", "10.0.0.1:1234", "1.2.3.4, 10.0.0.9", "", []string{"10.0.0.1"}, "1.2.3.4"},
		{"trusted x-real-ip", "10.0.0.1:1234", "", "5.6.7.8", []string{"10.0.0.1"}, "5.6.7.8"},
		{"trusted no headers", "10.0.0.1:1234", "", "", []string{"10.0.0.1"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestRateLimit_TokenRefill(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping time-dependent test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 1})(okHandler())

	send := func() int {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
	time.Sleep(1100 * time.Millisecond)
	assert.Equal(t, http.StatusOK, send())
}

func TestRateLimit_CleanupGoroutineStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runtime.GC()
	time.Sleep(10 * time.Millisecond)
	before := runtime.NumGoroutine()

	handler := RateLimit(ctx, RateLimitConfig{RequestsPerSecond: 1, Burst: 10})(okHandler())
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	cancel()
	time.Sleep(100 * time.Millisecond)
	runtime.GC()
	time.Sleep(50 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 {
		t.Errorf("Potential goroutine leak: before=%d, after=%d (diff=%d)", before, after, after-before)
	}
}
