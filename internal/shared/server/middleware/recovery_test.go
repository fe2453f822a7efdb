package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"resume-critique/internal/shared/telemetry"
)

func TestRecoveryLogsAndReturns500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	restore := telemetry.SetLogger(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/api/v1/submissions/:id", func(c *gin.Context) {
		c.Set(SubmissionIDKey, c.Param("id"))
		panic("boom")
	})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/submissions/s-9", nil))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"internal_error"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}

	entries := logs.FilterMessage("request.panic").All()
	if len(entries) != 1 {
		t.Fatalf("expected one panic log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["submission_id"] != "s-9" || fields["error"] != "boom" {
		t.Fatalf("unexpected fields %+v", fields)
	}
}
