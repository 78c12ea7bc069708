package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/proctor/internal/domain"
)

// Auth creates an authentication middleware checking a static API key sent
// as a Bearer token. An empty key disables authentication.
func Auth(apiKey string) fiber.Handler {
	if apiKey == "" {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	expected := hashAPIKey(apiKey)

	return func(c *fiber.Ctx) error {
		token := extractBearerToken(c)
		if token == "" {
			return domain.ErrUnauthorized
		}

		got := hashAPIKey(token)
		if subtle.ConstantTimeCompare(got[:], expected[:]) != 1 {
			return domain.ErrUnauthorized
		}

		return c.Next()
	}
}

// extractBearerToken extracts token from Authorization header
func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

func hashAPIKey(apiKey string) [sha256.Size]byte {
	return sha256.Sum256([]byte(apiKey))
}
