package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	appService "github.com/turtacn/renewguard/internal/application/service"
	"github.com/turtacn/renewguard/internal/config"
	"github.com/turtacn/renewguard/internal/domain/service"
	"github.com/turtacn/renewguard/internal/infrastructure/monitoring"
	"github.com/turtacn/renewguard/internal/infrastructure/ratelimit"
	"github.com/turtacn/renewguard/internal/interfaces/http/handlers"
	"github.com/turtacn/renewguard/pkg/logger"
)

const adminToken = "test-admin-token"

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type pingAdapter struct{ client *redis.Client }

func (p pingAdapter) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// testServer serves the full router over a real listener, so the reverse
// proxy sees a genuine connection and ClientIP is the loopback peer.
type testServer struct {
	router *Router
	mr     *miniredis.Miniredis
	url    string
}

type response struct {
	code   int
	body   string
	header http.Header
}

func newTestServer(t *testing.T, upstreamStatus int, mutate ...func(*config.Config)) *testServer {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(upstreamStatus)
	}))
	t.Cleanup(upstream.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Server.UpstreamURL = upstream.URL
	cfg.Admin.Enabled = true
	cfg.Admin.Token = adminToken
	for _, m := range mutate {
		m(cfg)
	}

	log := logger.NewNoopLogger()
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	// Wednesday noon: peak band, paymentVerification resolves to 4 points.
	clock := fixedClock{now: time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)}

	limiter := appService.NewRateLimitAppService(appService.RateLimiterDeps{
		Resolver: service.NewConfigResolver(cfg.RateLimit.ToPolicySet()),
		Store:    ratelimit.NewRedisCounterStore(client, log),
		Metrics:  metrics,
		Clock:    clock,
		Logger:   log,
	}, appService.OptionsFromConfig(cfg.RateLimit))
	t.Cleanup(func() { _ = limiter.Close() })

	proxy, err := handlers.NewProxyHandler(cfg.Server.UpstreamURL, log)
	require.NoError(t, err)

	r := NewRouter(cfg, log, RouterDeps{
		Limiter:  limiter,
		Health:   handlers.NewHealthHandler(pingAdapter{client: client}, limiter, log),
		Admin:    handlers.NewAdminHandler(limiter, log),
		Proxy:    proxy,
		Observer: metrics,
		Tracer:   otel.Tracer("test"),
		Gatherer: reg,
		Clock:    clock,
	})
	srv := httptest.NewServer(r.Engine())
	t.Cleanup(srv.Close)

	return &testServer{router: r, mr: mr, url: srv.URL}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.url+path, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return response{code: resp.StatusCode, body: string(b), header: resp.Header}
}

func (s *testServer) post(t *testing.T, path string, headers map[string]string) response {
	t.Helper()
	return s.do(t, http.MethodPost, path, "", headers)
}

func (s *testServer) get(t *testing.T, path string) response {
	t.Helper()
	return s.do(t, http.MethodGet, path, "", nil)
}

func (s *testServer) admin(t *testing.T, method, path, body string) response {
	t.Helper()
	return s.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + adminToken})
}

func TestRouter_PaymentVerificationLimit(t *testing.T) {
	s := newTestServer(t, http.StatusOK)

	for i := 0; i < 4; i++ {
		w := s.post(t, "/api/v1/payments/order-1/verify", nil)
		require.Equal(t, http.StatusOK, w.code, "request %d", i+1)
	}
	w := s.post(t, "/api/v1/payments/order-1/verify", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.code)
	assert.Equal(t, "1800", w.header.Get("Retry-After"))
	assert.Contains(t, w.body, `"code":"RATE_LIMITED"`)

	status := s.admin(t, http.MethodGet, "/admin/ratelimit/status?key=order-1&limitType=paymentVerification", "")
	require.Equal(t, http.StatusOK, status.code)
	assert.Contains(t, status.body, `"blocked":true`)
	assert.Contains(t, status.body, `"identifier":"order-1"`)

	metrics := s.get(t, "/metrics")
	assert.Contains(t, metrics.body, `renewguard_blocks_total{limit_type="paymentVerification"} 1`)
}

func TestRouter_FailurePatternBlocksClient(t *testing.T) {
	s := newTestServer(t, http.StatusPaymentRequired)

	for i := 0; i < 5; i++ {
		w := s.post(t, fmt.Sprintf("/api/v1/payments/order-%d/verify", i), nil)
		require.Equal(t, http.StatusPaymentRequired, w.code)
	}

	w := s.post(t, "/api/v1/payments/order-99/verify", nil)
	assert.Equal(t, http.StatusForbidden, w.code)
	assert.Contains(t, w.body, `"code":"SUSPICIOUS_ACTIVITY_BLOCKED"`)

	blocks := s.admin(t, http.MethodGet, "/admin/ratelimit/blocks", "")
	assert.Contains(t, blocks.body, `"limit_type":"failures"`)

	reset := s.admin(t, http.MethodPost, "/admin/ratelimit/reset", `{"key":"127.0.0.1","limitType":"failures"}`)
	require.Equal(t, http.StatusOK, reset.code)

	w = s.post(t, "/api/v1/payments/order-99/verify", nil)
	assert.Equal(t, http.StatusPaymentRequired, w.code)
}

func TestRouter_ForwardedForIgnoredWithoutTrustedProxies(t *testing.T) {
	s := newTestServer(t, http.StatusPaymentRequired)

	for i := 0; i < 5; i++ {
		w := s.post(t, fmt.Sprintf("/api/v1/payments/order-%d/verify", i),
			map[string]string{"X-Forwarded-For": fmt.Sprintf("203.0.113.%d", i)})
		require.Equal(t, http.StatusPaymentRequired, w.code)
	}

	w := s.post(t, "/api/v1/payments/order-5/verify", map[string]string{"X-Forwarded-For": "203.0.113.77"})
	assert.Equal(t, http.StatusForbidden, w.code, "a forged header must not change the client key")

	blocks := s.admin(t, http.MethodGet, "/admin/ratelimit/blocks", "")
	assert.Contains(t, blocks.body, `"identifier":"127.0.0.1"`)
	assert.NotContains(t, blocks.body, "203.0.113.")
}

func TestRouter_ForwardedForHonoredFromTrustedProxy(t *testing.T) {
	s := newTestServer(t, http.StatusPaymentRequired, func(c *config.Config) {
		c.Server.TrustedProxies = []string{"127.0.0.1/32", "::1/128"}
	})
	client := map[string]string{"X-Forwarded-For": "198.51.100.7"}

	for i := 0; i < 5; i++ {
		w := s.post(t, fmt.Sprintf("/api/v1/payments/order-%d/verify", i), client)
		require.Equal(t, http.StatusPaymentRequired, w.code)
	}

	assert.Equal(t, http.StatusForbidden, s.post(t, "/api/v1/payments/order-5/verify", client).code)
	other := s.post(t, "/api/v1/payments/order-5/verify", map[string]string{"X-Forwarded-For": "198.51.100.8"})
	assert.Equal(t, http.StatusPaymentRequired, other.code)
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	s := newTestServer(t, http.StatusOK)

	w := s.do(t, http.MethodPost, "/admin/ratelimit/reset", `{"key":"127.0.0.1","limitType":"failures"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.code)

	disabled := newTestServer(t, http.StatusOK, func(c *config.Config) { c.Admin.Enabled = false })
	w = disabled.admin(t, http.MethodGet, "/admin/ratelimit/blocks", "")
	assert.Equal(t, http.StatusNotFound, w.code)
}

func TestRouter_MissingIdentifierAndHealth(t *testing.T) {
	s := newTestServer(t, http.StatusOK)

	w := s.post(t, "/api/v1/hospitals/%20/subscription/renew", nil)
	assert.Equal(t, http.StatusBadRequest, w.code)
	assert.Contains(t, w.body, "MISSING_HOSPITAL_ID")

	assert.Equal(t, http.StatusOK, s.get(t, "/ready").code)
	s.mr.Close()
	assert.Equal(t, http.StatusServiceUnavailable, s.get(t, "/ready").code)
	assert.Equal(t, http.StatusOK, s.get(t, "/live").code)

	// the limiter fails open while the store is down
	w = s.post(t, "/api/v1/hospitals/h1/subscription/renew", nil)
	assert.Equal(t, http.StatusOK, w.code)
}

//Personal.AI order the ending
