package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-exam-api/internal/config"
	"github.com/noah-isme/gema-exam-api/internal/handler"
	"github.com/noah-isme/gema-exam-api/internal/middleware"
	"github.com/noah-isme/gema-exam-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StudentTestHandler    *handler.StudentTestHandler
	ResultHandler         *handler.ResultHandler
	AdminTestHandler      *handler.AdminTestHandler
	AdminStudentHandler   *handler.AdminStudentHandler
	AdminActivityHandler  *handler.AdminActivityHandler
	AdminDashboardHandler *handler.AdminDashboardHandler
	LiveHandler           *handler.LiveHandler
	JWTMiddleware         fiber.Handler
	SubmitLimiter         fiber.Handler
	GenerateLimiter       fiber.Handler
	ExposeMetrics         bool
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	if deps.ExposeMetrics {
		app.Get("/metrics", observability.MetricsHandler())
	}

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	adminOnly := middleware.RequireRole(middleware.AuthRoleAdmin)
	studentOnly := middleware.RequireRole(middleware.AuthRoleStudent)

	// Student test taking
	if deps.StudentTestHandler != nil {
		tests := api.Group("/tests", jwtMiddleware, studentOnly)
		deps.StudentTestHandler.Register(tests, deps.SubmitLimiter)
	}

	// Results: students list their own, any role may open one it is entitled to
	if deps.ResultHandler != nil {
		deps.ResultHandler.Register(api.Group("/results", jwtMiddleware), studentOnly)
	}

	admin := api.Group("/admin", jwtMiddleware, adminOnly)

	if deps.AdminTestHandler != nil {
		deps.AdminTestHandler.Register(admin.Group("/tests"), deps.GenerateLimiter)
	}
	if deps.ResultHandler != nil {
		deps.ResultHandler.RegisterAdmin(admin.Group("/results"))
	}
	if deps.AdminStudentHandler != nil {
		deps.AdminStudentHandler.Register(admin.Group("/students"))
	}
	if deps.AdminActivityHandler != nil {
		deps.AdminActivityHandler.Register(admin.Group("/activity"))
	}
	if deps.AdminDashboardHandler != nil {
		deps.AdminDashboardHandler.Register(admin.Group("/dashboard"))
	}

	// Live monitoring
	if deps.LiveHandler != nil {
		live := api.Group("/live", jwtMiddleware)
		deps.LiveHandler.Register(live, adminOnly)
	}
}
