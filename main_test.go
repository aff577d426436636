package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/billbatista/acasinha-debts/config"
	"github.com/billbatista/acasinha-debts/ledger"
	"github.com/billbatista/acasinha-debts/metrics"
	"github.com/billbatista/acasinha-debts/session"
	"github.com/billbatista/acasinha-debts/user"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, checks map[string]func(context.Context) error) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{AppRequestTimeout: time.Second, RateLimitPerMinute: 100}
	sessions := session.NewRepository(client, time.Hour)
	s := &server{
		cfg:      cfg,
		users:    user.NewHandler(nil, sessions, nil, false, nil),
		debts:    ledger.NewHandler(ledger.NewService(nil, nil, nil, nil, nil), nil, "৳", nil),
		sessions: sessions,
		metrics:  metrics.New(),
		checks:   checks,
		log:      config.NewLogger(cfg),
	}
	return s.routes()
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	rec := httptest.NewRecorder()
	testServer(t, map[string]func(context.Context) error{"database": ok}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"database":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = httptest.NewRecorder()
	testServer(t, map[string]func(context.Context) error{"database": ok, "redis": down}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"database":"ok","redis":"unavailable"}`, rec.Body.String())
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	router := testServer(t, nil)

	for _, path := range []string{"/debts", "/debts/summary", "/debts/stream", "/user/me"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/debts", nil)
	req.Header.Set("Authorization", "Bearer forged")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := testServer(t, nil)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/debts", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `debts_http_requests_total{code="401",route="/debts"} 1`)
}
