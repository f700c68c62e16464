package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-assessment-api/internal/utils"
)

// RequireRole rejects callers whose role is not among roles with 403.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]bool, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = true
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(LocalUserRole).(string)
		if !allowed[normalizeRole(role)] {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
