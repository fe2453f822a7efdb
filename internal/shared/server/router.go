// Package server assembles the gin engine: middleware chain, submission routes and metrics.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	googleauth "resume-critique/internal/auth"
	"resume-critique/internal/intake"
	"resume-critique/internal/services/health"
	"resume-critique/internal/shared/config"
	"resume-critique/internal/shared/metrics"
	"resume-critique/internal/shared/server/middleware"
	"resume-critique/internal/shared/server/respond"
)

// RouterDeps is what the router needs from bootstrap.
type RouterDeps struct {
	Config      config.Config
	Verifier    middleware.TokenVerifier
	Submissions *intake.Handler
	GoogleAuth  *googleauth.GoogleService
	RateLimiter *middleware.RateLimiter
	Health      *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.Auth(deps.Verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:    middleware.SubmitRules(deps.Config.SubmitRatePerMin, deps.Config.SubmitBurst),
			GroupFor: middleware.SubmitGroup,
			Limiter:  deps.RateLimiter,
		}),
	)

	checks := deps.Health
	if checks == nil {
		checks = health.NewService()
	}
	api.GET("/health", func(c *gin.Context) {
		rep := checks.Status(c.Request.Context())
		status := http.StatusOK
		if !rep.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, rep)
	})
	registerMeRoutes(api)
	if deps.GoogleAuth != nil {
		deps.GoogleAuth.RegisterRoutes(api)
	}
	if deps.Submissions != nil {
		deps.Submissions.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
