package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/services/health"
	"resume-critique/internal/shared/config"
)

func TestRouterHealthMeAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterDeps{Config: config.Config{Env: "dev", CORSAllowOrigin: []string{"http://localhost:5173"}}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("health expected 200, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("X-Guest-Id", "g1")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"userId":"guest:g1"`) {
		t.Fatalf("unexpected /me response %d %s", resp.Code, resp.Body.String())
	}

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "submissions_started_total") {
		t.Fatalf("unexpected metrics response %d", resp.Code)
	}
}

func TestRouterHealthReportsFailingDependency(t *testing.T) {
	gin.SetMode(gin.TestMode)
	checks := health.NewService()
	checks.Register("database", func(context.Context) error { return errors.New("connection refused") })
	r := NewRouter(RouterDeps{Config: config.Config{Env: "dev"}, Health: checks})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("health expected 503, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"database":"connection refused"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestAddr(t *testing.T) {
	if Addr("") != ":8080" || Addr("9000") != ":9000" || Addr(":7000") != ":7000" {
		t.Fatalf("unexpected Addr normalization")
	}
}
