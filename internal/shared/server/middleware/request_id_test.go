package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/pipeline"
)

func TestRequestIDPropagation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		header   string
		wantSame bool
	}{
		{name: "caller id kept", header: "abc-123", wantSame: true},
		{name: "missing id minted", header: ""},
		{name: "control chars rejected", header: "bad\tid"},
		{name: "oversized rejected", header: strings.Repeat("a", 200)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(RequestID())
			var fromCtx string
			r.GET("/x", func(c *gin.Context) {
				fromCtx = pipeline.RequestIDFromContext(c.Request.Context())
				c.Status(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.header != "" {
				req.Header.Set("X-Request-Id", tt.header)
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			got := resp.Header().Get("X-Request-Id")
			if got == "" || got != fromCtx {
				t.Fatalf("header %q and context %q must match and be set", got, fromCtx)
			}
			if tt.wantSame && got != tt.header {
				t.Fatalf("expected caller id %q, got %q", tt.header, got)
			}
			if !tt.wantSame && got == tt.header {
				t.Fatalf("expected a minted id, got caller value")
			}
		})
	}
}
