package middleware

import (
	"context"
	"strings"

	"socialgraph/internal/auth"
	"socialgraph/internal/models"

	"github.com/gofiber/fiber/v2"
)

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
// ok is false when the header is present but malformed.
func BearerToken(header string) (token string, ok bool) {
	if header == "" {
		return "", true
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// OptionalAuth attaches the caller identity when a bearer token is supplied.
// Requests without a token proceed anonymously; invalid tokens are rejected.
func OptionalAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := BearerToken(c.Get("Authorization"))
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid authorization header format"))
		}
		if token == "" {
			return c.Next()
		}

		id, err := auth.ParseToken(secret, token)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		c.Locals("userID", id.UserID)
		ctx := auth.WithIdentity(c.UserContext(), id)
		ctx = context.WithValue(ctx, UserIDKey, id.UserID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}
