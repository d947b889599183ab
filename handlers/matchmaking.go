// handlers/matchmaking.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"whoosh-backend/middleware"
	"whoosh-backend/services"
)

type queueRequest struct {
	Queue string `json:"queue"`
}

func SetupMatchmakingRoutes(app *fiber.App, matchmaking *services.MatchmakingService, tokens *services.TokenIssuer, serviceToken string) {
	match := app.Group("/api/match")

	// 🔐 Players (auth per route; claim below takes the service token instead)
	userAuth := middleware.UserAuth(tokens)

	match.Post("/join", userAuth, func(c *fiber.Ctx) error {
		var req queueRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badBody(c, err)
			}
		}
		resp, err := matchmaking.JoinQueue(c.UserContext(), services.JoinQueueRequest{
			UserID:    middleware.UserID(c),
			QueueName: req.Queue,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	})

	match.Post("/leave", userAuth, func(c *fiber.Ctx) error {
		var req queueRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badBody(c, err)
			}
		}
		removed, err := matchmaking.LeaveQueue(c.UserContext(), middleware.UserID(c), req.Queue)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"removed": removed})
	})

	match.Get("/status", userAuth, func(c *fiber.Ctx) error {
		status, err := matchmaking.PlayerStatus(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(status)
	})

	match.Get("/games/:id", userAuth, func(c *fiber.Ctx) error {
		game, err := matchmaking.GetGame(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if !game.HasPlayer(middleware.UserID(c)) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "game not found",
				"kind":  services.KindNotFound,
			})
		}
		return c.JSON(game)
	})

	// 🔐 Game servers
	match.Post("/games/:id/claim", middleware.ServiceTokenAuth(serviceToken), func(c *fiber.Ctx) error {
		game, err := matchmaking.ClaimGame(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(game)
	})
}
