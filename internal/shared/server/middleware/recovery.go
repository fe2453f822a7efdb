package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"resume-critique/internal/shared/server/respond"
	"resume-critique/internal/shared/telemetry"
	"resume-critique/internal/shared/util"
)

// Recovery turns a handler panic into a 500 and logs it with the submission it was serving.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			telemetry.Error("request.panic", map[string]any{
				"request_id":    RequestIDFromContext(c),
				"method":        c.Request.Method,
				"route":         c.FullPath(),
				"owner_hash":    util.ShortHash(UserIDFromContext(c)),
				"submission_id": c.GetString(SubmissionIDKey),
				"error":         util.SanitizeError(fmt.Errorf("%v", rec)),
				"stack":         string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal_error", "Unexpected server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}
