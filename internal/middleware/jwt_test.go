package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/bankcards/internal/card"
)

var testSecret = []byte("test-secret")

type staticCallers map[string]card.Caller

func (s staticCallers) Caller(_ context.Context, id string) (card.Caller, error) {
	c, ok := s[id]
	if !ok {
		return card.Caller{}, errors.New("user not found")
	}
	return c, nil
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func validClaims(sub string) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func setupAuthApp() *fiber.App {
	callers := staticCallers{
		"admin-1": {ID: "admin-1", Role: card.RoleAdmin},
		"user-1":  {ID: "user-1", Role: card.RoleUser},
	}
	app := fiber.New()
	app.Use(JWTAuth(testSecret, callers))
	app.Get("/me", func(c *fiber.Ctx) error {
		caller, err := card.CallerFrom(c)
		if err != nil {
			return err
		}
		return c.SendString(string(caller.Role))
	})
	app.Get("/admin", RequireRole(card.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func authGet(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
	app := setupAuthApp()

	if status := authGet(t, app, "/me", sign(t, jwt.SigningMethodHS256, testSecret, validClaims("user-1"))); status != fiber.StatusOK {
		t.Fatalf("expected %d got %d", fiber.StatusOK, status)
	}
}

func TestJWTAuthRejects(t *testing.T) {
	app := setupAuthApp()
	expired := validClaims("user-1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := validClaims("user-1")
	noExpiry.ExpiresAt = nil

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims("user-1")),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, testSecret, validClaims("user-1")),
		"expired":      sign(t, jwt.SigningMethodHS256, testSecret, expired),
		"no expiry":    sign(t, jwt.SigningMethodHS256, testSecret, noExpiry),
		"no subject":   sign(t, jwt.SigningMethodHS256, testSecret, validClaims("")),
		"unknown user": sign(t, jwt.SigningMethodHS256, testSecret, validClaims("ghost")),
	}
	for name, token := range cases {
		if status := authGet(t, app, "/me", token); status != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected %d got %d", name, fiber.StatusUnauthorized, status)
		}
	}
}

func TestRequireRole(t *testing.T) {
	app := setupAuthApp()

	if status := authGet(t, app, "/admin", sign(t, jwt.SigningMethodHS256, testSecret, validClaims("user-1"))); status != fiber.StatusForbidden {
		t.Fatalf("expected %d got %d", fiber.StatusForbidden, status)
	}
	if status := authGet(t, app, "/admin", sign(t, jwt.SigningMethodHS256, testSecret, validClaims("admin-1"))); status != fiber.StatusNoContent {
		t.Fatalf("expected %d got %d", fiber.StatusNoContent, status)
	}
}
