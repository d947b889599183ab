// handlers/game.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"whoosh-backend/middleware"
	"whoosh-backend/services"
)

func SetupGameRoutes(app *fiber.App, results *services.ResultService, tokens *services.TokenIssuer, serviceToken string) {
	game := app.Group("/api/game")

	// 🔐 Game servers report finished games
	game.Post("/result", middleware.ServiceTokenAuth(serviceToken), func(c *fiber.Ctx) error {
		var req services.SubmitResultRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, err)
		}
		resp, err := results.SubmitResult(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	})

	// 🔐 Players
	game.Get("/history", middleware.UserAuth(tokens), func(c *fiber.Ctx) error {
		history, err := results.MatchHistory(c.UserContext(), middleware.UserID(c), c.QueryInt("limit", services.DefaultHistoryLimit))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(history)
	})
}
