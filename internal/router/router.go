package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/config"
	"github.com/noah-isme/gema-assessment-api/internal/handler"
	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssessmentHandler   *handler.AssessmentHandler
	SubmissionHandler   *handler.SubmissionHandler
	GradingHandler      *handler.GradingHandler
	StatisticsHandler   *handler.StatisticsHandler
	NotificationHandler *handler.NotificationHandler
	ActivityHandler     *handler.ActivityHandler
	HealthProbes        []handler.HealthProbe
	JWTMiddleware       fiber.Handler
	// SubmitGuard throttles submit and resubmit calls. Nil falls back to the configured
	// per-user rate limit.
	SubmitGuard fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}
	protected := api.Group("", jwtMiddleware)

	if deps.AssessmentHandler != nil {
		deps.AssessmentHandler.Register(protected)
	}
	if deps.SubmissionHandler != nil {
		guard := deps.SubmitGuard
		if guard == nil {
			guard = middleware.RateLimit("submissions", cfg.SubmitRateLimit, submitWindow(cfg))
		}
		deps.SubmissionHandler.Register(protected, guard)
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(protected)
	}
	if deps.StatisticsHandler != nil {
		deps.StatisticsHandler.Register(protected)
	}
	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(protected)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(protected)
	}
}

func submitWindow(cfg config.Config) time.Duration {
	if cfg.SubmitRateWindow <= 0 {
		return time.Minute
	}
	return cfg.SubmitRateWindow
}
