// handlers/auth.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"whoosh-backend/middleware"
	"whoosh-backend/services"
)

func SetupAuthRoutes(app *fiber.App, accounts *services.AccountService, guests *services.GuestService) {
	auth := app.Group("/api/auth")

	// 🔓 Public
	auth.Post("/register", func(c *fiber.Ctx) error {
		var req services.RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, err)
		}
		resp, err := accounts.Register(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	})

	auth.Post("/login", func(c *fiber.Ctx) error {
		var req services.LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, err)
		}
		resp, err := accounts.Login(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	})

	auth.Post("/refresh", func(c *fiber.Ctx) error {
		var req struct {
			Refresh string `json:"refresh"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, err)
		}
		tokens, err := accounts.Refresh(c.UserContext(), req.Refresh)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tokens)
	})

	auth.Post("/guest", func(c *fiber.Ctx) error {
		var req services.CreateGuestRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badBody(c, err)
			}
		}
		resp, err := guests.CreateGuest(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	})

	// 🔐 Guest token required
	auth.Post("/convert-guest", middleware.UserAuth(accounts.Tokens), func(c *fiber.Ctx) error {
		if !middleware.IsGuest(c) {
			return respondError(c, &services.ServiceError{Kind: services.KindConflict, Message: "only guest accounts can be converted"})
		}
		var req services.ConvertGuestRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, err)
		}
		req.UserID = middleware.UserID(c)
		resp, err := guests.ConvertGuest(c.UserContext(), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(resp)
	})

	users := app.Group("/api/users", middleware.UserAuth(accounts.Tokens))

	users.Get("/me", func(c *fiber.Ctx) error {
		profile, err := accounts.Profile(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(profile)
	})

	users.Patch("/me", func(c *fiber.Ctx) error {
		var req services.UpdateProfileRequest
		if err := c.BodyParser(&req); err != nil {
			return badBody(c, err)
		}
		profile, err := accounts.UpdateProfile(c.UserContext(), middleware.UserID(c), req)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(profile)
	})
}
