// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"whoosh-backend/services"
)

// Locals keys set by UserAuth.
const (
	LocalUserID   = "user_id"
	LocalUsername = "username"
	LocalIsGuest  = "is_guest"
)

// UserAuth requires a valid access token, taken from "Authorization:
// Bearer <token>" or, for websocket and SSE clients that cannot set
// headers, the "token" query parameter. Guests are accepted.
func UserAuth(tokens *services.TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = strings.TrimSpace(c.Query("token"))
		}
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication token missing",
				"kind":  services.KindUnauthorized,
			})
		}

		claims, err := tokens.Parse(raw, services.TokenTypeAccess)
		if err != nil {
			log.Printf("🚫 [AUTH] rejected token for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": err.Error(),
				"kind":  services.KindUnauthorized,
			})
		}

		c.Locals(LocalUserID, claims.UserID)
		c.Locals(LocalUsername, claims.Username)
		c.Locals(LocalIsGuest, claims.IsGuest)
		return c.Next()
	}
}

// UserID returns the authenticated user's id, or "" outside UserAuth.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// IsGuest reports whether the authenticated user is a guest.
func IsGuest(c *fiber.Ctx) bool {
	guest, _ := c.Locals(LocalIsGuest).(bool)
	return guest
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
