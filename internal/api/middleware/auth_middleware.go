package middleware

import (
	"log"

	"github.com/gofiber/fiber/v2"
	cfg "github.com/postbridge/postbridge/configs"
	"github.com/postbridge/postbridge/pkg/utils"
)

type AuthMiddleware struct {
	cfg cfg.Config
}

func NewAuthMiddleware(cfg cfg.Config) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg}
}

// AuthMiddleware validates the workspace session cookie and stashes the
// workspace id in request locals.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing session cookie",
			})
		}

		claims, err := utils.ValidateSessionToken(m.cfg.SecretKey, tokenString)
		if err != nil {
			c.Cookie(&fiber.Cookie{
				Name:   m.cfg.CookieName,
				Value:  "",
				Path:   "/",
				MaxAge: -1, // Delete cookie
			})

			log.Printf("Token validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("workspace_id", claims.WorkspaceID)
		return c.Next()
	}
}
