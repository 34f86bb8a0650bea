package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/bankcards/internal/card"
)

// CallerResolver turns a token subject into a card principal.
type CallerResolver interface {
	Caller(ctx context.Context, id string) (card.Caller, error)
}

// JWTAuth validates HS256 bearer tokens issued by the identity provider and
// stores the resolved card.Caller in the request locals.
func JWTAuth(secret []byte, callers CallerResolver) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (interface{}, error) { return secret, nil }

	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(tokenStr, &claims, keyFunc); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if claims.Subject == "" {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		caller, err := callers.Caller(c.UserContext(), claims.Subject)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "token invalidated")
		}

		c.Locals(card.CallerLocalsKey, caller)
		return c.Next()
	}
}

// RequireRole rejects callers without the given role.
func RequireRole(role card.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, err := card.CallerFrom(c)
		if err != nil {
			return err
		}
		if caller.Role != role {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}
