package middleware

import (
	"context"

	"github.com/Ranguvenu/skf-sub003/internal/engine"

	"github.com/gofiber/fiber/v2"
)

// CapabilityChecker answers whether an identity holds a capability.
// Satisfied by permission.Checker.
type CapabilityChecker interface {
	HasCapability(ctx context.Context, identity engine.Identity, capability string) (bool, error)
}

// RequireCapability guards an endpoint behind a role capability.
func RequireCapability(checker CapabilityChecker, capability string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identity, ok := Identity(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		granted, err := checker.HasCapability(c.Context(), identity, capability)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		}
		if !granted {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: Insufficient permissions",
			})
		}

		return c.Next()
	}
}
