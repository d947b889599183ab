// handlers/health.go
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

// SetupHealthRoutes serves GET /api/health. Without checks it only
// confirms the process is up.
func SetupHealthRoutes(app *fiber.App, checks map[string]HealthCheck) {
	app.Get("/api/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := fiber.StatusOK
		deps := fiber.Map{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = fiber.StatusServiceUnavailable
				deps[name] = err.Error()
				continue
			}
			deps[name] = "ok"
		}

		body := fiber.Map{"status": "ok", "dependencies": deps}
		if status != fiber.StatusOK {
			body["status"] = "degraded"
		}
		return c.Status(status).JSON(body)
	})
}
