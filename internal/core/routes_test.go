package core

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"occasions/internal/config"
)

func newRoutedServer(t *testing.T, metrics MetricsCollector) *Server {
	t.Helper()
	cfg := &config.Config{Environment: "local"}
	cfg.Server.RequestTimeout = 3 * time.Second

	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	srv.Metrics = metrics
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/subjects/{id}", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusOK, APIResponse{Data: chi.URLParam(r, "id")})
		})
		r.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("bad") })
	})
	srv.MountRoutes()
	return srv
}

func TestMountRoutes_V1AndHealth(t *testing.T) {
	srv := newRoutedServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/subjects/abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":"abc"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMountRoutes_PanicRecovered(t *testing.T) {
	srv := newRoutedServer(t, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	detail := decodeErrorBody(t, rec)
	assert.Equal(t, rec.Header().Get("X-Request-Id"), detail.RequestID)
}

func TestMountRoutes_MetricsUseRoutePattern(t *testing.T) {
	metrics := &mockMetricsCollector{}
	srv := newRoutedServer(t, metrics)

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/subjects/abc", nil))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, metrics.requests, 2)
	assert.Equal(t, recordedRequest{"GET", "/v1/subjects/{id}", "200"}, metrics.requests[0])
	assert.Equal(t, "404", metrics.requests[1].status)
}

func TestRequestTimeoutFallback(t *testing.T) {
	srv := newBareServer(t)
	assert.Equal(t, defaultRequestTimeout, srv.requestTimeout())

	srv.Config.Server.RequestTimeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, srv.requestTimeout())
}

func TestCorsAllowedOriginsFallback(t *testing.T) {
	srv := newBareServer(t)
	assert.Equal(t, []string{"*"}, srv.corsAllowedOrigins())

	srv.Config.Security.CorsAllowedOrigins = []string{"https://a.example"}
	assert.Equal(t, []string{"https://a.example"}, srv.corsAllowedOrigins())
}
