// middleware/service_token.go
package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenAuth guards the endpoints only game servers may call. The
// shared token arrives as "Authorization: Bearer <token>", a raw
// Authorization value, or X-Service-Token.
func ServiceTokenAuth(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Println("⚠️ [SERVICE_AUTH] GAME_SERVICE_TOKEN is not set, service endpoints will reject every request")
	}

	return func(c *fiber.Ctx) error {
		token := c.Get("X-Service-Token")
		if token == "" {
			authHeader := c.Get(fiber.HeaderAuthorization)
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if token == "" {
			log.Printf("🚫 [SERVICE_AUTH] Missing service token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service authentication token missing",
				"kind":  "unauthorized",
			})
		}

		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [SERVICE_AUTH] Invalid service token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service authentication token",
				"kind":  "unauthorized",
			})
		}
		return c.Next()
	}
}
