package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

// Context keys handlers may set so request.complete carries submission details.
const (
	SubmissionIDKey = "submissionId"
	StateKey        = "submissionState"
)

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		owner := UserIDFromContext(c)
		isGuest, _ := c.Get(isGuestKey)
		fields := map[string]any{
			"request_id":    RequestIDFromContext(c),
			"method":        c.Request.Method,
			"path":          c.Request.URL.Path,
			"route":         c.FullPath(),
			"status":        c.Writer.Status(),
			"duration_ms":   float64(latency.Microseconds()) / 1000.0,
			"owner_hash":    "",
			"submission_id": c.GetString(SubmissionIDKey),
			"state":         c.GetString(StateKey),
			"is_guest":      isGuest,
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
		}
		if owner != "" {
			fields["owner_hash"] = util.ShortHash(owner)
		}
		telemetry.Info("request.complete", fields)
	}
}
