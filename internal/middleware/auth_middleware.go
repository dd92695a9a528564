package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/tao2825/library-borrow-system/internal/model"
	"github.com/tao2825/library-borrow-system/internal/service"
)

// Keys of the request locals set by RequireAuth.
const (
	LocalUserID     = "user_id"
	LocalUsername   = "username"
	LocalRole       = "role"
	LocalMustRotate = "must_change_password"
)

// RequireAuth validates the bearer token against the live account and sets user info in context
func RequireAuth(auth service.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Missing authorization token"})
		}

		// Extract token from "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid authorization format. Use: Bearer <token>"})
		}

		user, err := auth.Authenticate(c.UserContext(), parts[1])
		if err != nil {
			if errors.Is(err, service.ErrAuth) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to verify session"})
		}

		c.Locals(LocalUserID, user.ID)
		c.Locals(LocalUsername, user.Username)
		c.Locals(LocalRole, user.Role)
		c.Locals(LocalMustRotate, user.MustChangePassword)

		return c.Next()
	}
}

// RequirePasswordRotated blocks accounts that still carry an issued password (the seeded
// admin, operator resets) until they change it.
func RequirePasswordRotated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if mustRotate, _ := c.Locals(LocalMustRotate).(bool); mustRotate {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Password change required. Use /api/v1/auth/change-password",
			})
		}
		return c.Next()
	}
}

// RequirePermission checks the authenticated role against a permission
func RequirePermission(p model.Permission) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals(LocalRole).(model.Role)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "No role found"})
		}
		if !role.Can(p) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Forbidden: requires '" + string(p) + "' permission",
			})
		}
		return c.Next()
	}
}

// UserID returns the authenticated account id, or 0 outside RequireAuth.
func UserID(c *fiber.Ctx) uint {
	id, _ := c.Locals(LocalUserID).(uint)
	return id
}

// Username returns the authenticated username, or "system" outside RequireAuth.
func Username(c *fiber.Ctx) string {
	name, ok := c.Locals(LocalUsername).(string)
	if !ok || name == "" {
		return "system"
	}
	return name
}
