package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aulalabs/aula-api/internal/config"
	"github.com/aulalabs/aula-api/internal/handler"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	SessionHandler    *handler.SessionHandler
	DocumentHandler   *handler.DocumentHandler
	GeneratorHandler  *handler.GeneratorHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
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

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.SessionHandler != nil {
		sessions := api.Group("/sessions", jwtMiddleware)
		deps.SessionHandler.Register(sessions)
	}

	// Documents, document chat, and exercise generation all hang off the
	// activity resource.
	if deps.DocumentHandler != nil || deps.GeneratorHandler != nil {
		activities := api.Group("/activities", jwtMiddleware)
		if deps.DocumentHandler != nil {
			deps.DocumentHandler.Register(activities)
		}
		if deps.GeneratorHandler != nil {
			deps.GeneratorHandler.Register(activities)
		}
	}
}
