package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

const TriggerSecretHeader = "X-SSE-Secret"

// RequireTriggerSecret guards internal endpoints that publish dashboard events.
func RequireTriggerSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Trigger secret not configured")
		}
		got := c.Get(TriggerSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid trigger secret")
		}
		return c.Next()
	}
}
