package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/ws?api_key=secret", nil)
	assert.Equal(t, http.StatusOK, serve(h, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, serve(h, req).Code)
}

func TestAuth_DisabledWithoutKey(t *testing.T) {
	h := Auth("")(okHandler)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/status", nil)).Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://dash.example"})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := serve(h, req)
	assert.Equal(t, "https://dash.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(h, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	assert.Equal(t, http.StatusNoContent, serve(h, req).Code)
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func (s *stubLimiter) Wait(context.Context, string, int, time.Duration) error { return nil }

func TestRateLimit(t *testing.T) {
	lim := &stubLimiter{allow: false}
	h := RateLimit(lim, 10, 2*time.Second, nil)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/tokens", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := serve(h, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"api:203.0.113.7"}, lim.keys)

	lim.allow = true
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/tokens", nil)).Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	lim := &stubLimiter{err: errors.New("redis down")}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RateLimit(lim, 10, time.Second, logger)(okHandler)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/api/tokens", nil)).Code)
}

func TestLogging_CapturesStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	assert.Equal(t, http.StatusTeapot, serve(h, httptest.NewRequest(http.MethodGet, "/x", nil)).Code)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", extractClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", extractClientIP(req))
}
