// handlers/errors.go
package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"whoosh-backend/services"
)

// statusFor maps a service error kind to its HTTP status.
func statusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindStoreUnavailable:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes {"error", "kind", "retryable"} for err.
func respondError(c *fiber.Ctx, err error) error {
	kind := services.KindOf(err)
	status := statusFor(kind)
	if status >= fiber.StatusInternalServerError {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"error":     err.Error(),
		"kind":      kind,
		"retryable": kind == services.KindStoreUnavailable,
	})
}

func badBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid request body",
		"cause": err.Error(),
		"kind":  services.KindValidation,
	})
}
