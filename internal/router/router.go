package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-tutor-analytics/internal/access"
	"github.com/noah-isme/gema-tutor-analytics/internal/config"
	"github.com/noah-isme/gema-tutor-analytics/internal/handler"
	"github.com/noah-isme/gema-tutor-analytics/internal/middleware"
	"github.com/noah-isme/gema-tutor-analytics/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	DashboardHandler *handler.DashboardHandler
	IngestHandler    *handler.IngestHandler
	SaltHandler      *handler.SaltHandler
	JWTMiddleware    fiber.Handler
	CallerMiddleware fiber.Handler
	RateLimiter      fiber.Handler
	HealthProbes     map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	protected := []fiber.Handler{}
	for _, h := range []fiber.Handler{deps.JWTMiddleware, deps.CallerMiddleware, deps.RateLimiter} {
		if h != nil {
			protected = append(protected, h)
		}
	}
	if len(protected) == 0 {
		protected = append(protected, func(c *fiber.Ctx) error { return c.Next() })
	}

	secured := api.Group("", protected...)
	if deps.DashboardHandler != nil {
		deps.DashboardHandler.Register(secured)
	}

	// Ingest and salt rotation are privacy operations.
	admin := secured.Group("/admin", middleware.RequirePermission(access.PermManagePrivacy))
	if deps.IngestHandler != nil {
		deps.IngestHandler.Register(admin)
	}
	if deps.SaltHandler != nil {
		deps.SaltHandler.Register(admin)
	}
}
