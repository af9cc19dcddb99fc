package core

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMountRoutes_HealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /health, got %d", rec.Code)
	}
}

func TestMountRoutes_V1Registrars(t *testing.T) {
	srv := newTestServer(t)
	srv.V1RouteRegistrars = []RouteRegistrar{
		func(r chi.Router) {
			r.Get("/advisories", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
		},
	}
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/v1/advisories", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from registered v1 route, got %d", rec.Code)
	}
}

func TestMountRoutes_MetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	collector := NewPrometheusCollector()
	srv.Metrics = collector
	srv.MetricsHandler = collector.Handler()
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}

func TestMountRoutes_MetricsDisabledWhenNoHandler(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 when metrics handler is not set, got %d", rec.Code)
	}
}

func TestMountRoutes_RequestIDEchoed(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID on response")
	}
}

func TestShutdown_RunsClosersInReverseOrder(t *testing.T) {
	srv := newTestServer(t)

	var order []int
	srv.OnShutdown(func() { order = append(order, 1) })
	srv.OnShutdown(func() { order = append(order, 2) })

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("expected closers in reverse order, got %v", order)
	}
}
