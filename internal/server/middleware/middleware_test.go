package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/config"
	"github.com/stretchr/testify/assert"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS_AllowedOrigin(t *testing.T) {
	h := CORS(NewCORSConfig(config.CORSConfig{AllowOrigins: []string{"https://docs.example.org"}, MaxAge: 600}))(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=file", nil)
	req.Header.Set("Origin", "https://docs.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://docs.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(NewCORSConfig(config.CORSConfig{AllowOrigins: []string{"*"}}))(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:8000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
	assert.Empty(t, rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	h := CORS(NewCORSConfig(config.CORSConfig{AllowOrigins: []string{"https://docs.example.org"}}))(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_PerClient(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 2})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	h := RateLimit(l)(ok)

	do := func(addr, path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:5000", "/api/v1/search"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:5001", "/api/v1/search"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5002", "/api/v1/search"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1:5003", "/health/live"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:5000", "/api/v1/search"))

	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("10.0.0.1:5004", "/api/v1/search"))
}

func TestLimiter_Sweep(t *testing.T) {
	l := NewLimiter(config.RateLimitConfig{RequestsPerSecond: 10})
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(time.Minute)
	l.Allow("b")

	assert.Equal(t, 1, l.Sweep(30*time.Second))
	assert.Len(t, l.clients, 1)
	assert.Equal(t, 10, l.burst)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(req))
	req.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", ClientIP(req))
}
