package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/labmgr/internal/app"
	"github.com/charlesng35/labmgr/internal/cache"
	testutil "github.com/charlesng35/labmgr/internal/database/testutil"
	"github.com/charlesng35/labmgr/internal/monitoring"
	"github.com/charlesng35/labmgr/internal/notify"
)

type discardNotifier struct{}

func (discardNotifier) Dispatch(notify.Job) bool { return true }

func newTestRouter(t *testing.T, mutate func(*app.Config)) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	cfg := &app.Config{
		Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "router-secret", Issuer: "test", TTL: 15 * time.Minute}},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	svc, err := app.NewServices(db, cfg, discardNotifier{}, cache.NewMemoryStore(0, 0))
	require.NoError(t, err)

	router, err := NewRouter(db, cfg, svc)
	require.NoError(t, err)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = serve(router, http.MethodGet, "/api/services")
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/api/auth/me", "/api/profile", "/api/accounts", "/api/registrations", "/api/audit"} {
		w = serve(router, http.MethodGet, path)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w = serve(router, http.MethodGet, "/api/does-not-exist")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "/api/does-not-exist")
}

func TestRouter_Readiness(t *testing.T) {
	router := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/health/ready")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"component":"database"`)

	gin.SetMode(gin.TestMode)
	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	cfg := &app.Config{Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "router-secret"}}}
	svc, err := app.NewServices(db, cfg, discardNotifier{}, cache.NewMemoryStore(0, 0))
	require.NoError(t, err)

	failing := monitoring.NewCheck("notifications", func(context.Context) monitoring.ProbeResult {
		return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "10/10 queued"}
	})
	router, err = NewRouter(db, cfg, svc, failing)
	require.NoError(t, err)

	w = serve(router, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), "10/10 queued")

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	serve(router, http.MethodGet, "/health")

	w := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "labmgr_api_latency_seconds"), "latency histogram missing from metrics output")
}

func TestRouter_MetricsDisabled(t *testing.T) {
	router := newTestRouter(t, func(cfg *app.Config) {
		cfg.Monitoring.Prometheus.Enabled = false
	})

	w := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	router := newTestRouter(t, func(cfg *app.Config) {
		cfg.RateLimit = app.RateLimitConfig{Requests: 2, Window: time.Minute}
	})

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/services").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/services").Code)

	w := serve(router, http.MethodGet, "/api/services")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(nil, &app.Config{}, &app.Services{})
	require.Error(t, err)
}
