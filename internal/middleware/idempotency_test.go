package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/logging"
)

const callerHeader = "X-Test-Caller"

// withTestCaller stands in for JWTAuth by trusting a header.
func withTestCaller(c *fiber.Ctx) error {
	if id := c.Get(callerHeader); id != "" {
		c.Locals(card.CallerLocalsKey, card.Caller{ID: id, Role: card.RoleUser})
	}
	return c.Next()
}

func newTestCache(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache
}

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int32) {
	t.Helper()
	cache := newTestCache(t)
	calls := &atomic.Int32{}

	app := fiber.New()
	app.Use(withTestCaller)
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"ok": true, "call": n})
	})
	app.Post("/fails", func(c *fiber.Ctx) error {
		calls.Add(1)
		return fiber.NewError(fiber.StatusConflict, "card not active")
	})
	return app, calls
}

func post(t *testing.T, app *fiber.App, path, key, caller string) (int, string) {
	t.Helper()
	return postBody(t, app, path, key, caller, "{}")
}

func postBody(t *testing.T, app *fiber.App, path, key, caller, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(out)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupTestApp(t)

	status, _ := post(t, app, "/resource", "", "u1")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}

	status, _ = post(t, app, "/resource", strings.Repeat("k", maxIdempotencyKeyLen+1), "u1")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d for long key got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t)

	status, payload := post(t, app, "/resource", "abc123", "u1")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, cached := post(t, app, "/resource", "abc123", "u1")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cached != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cached)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cached), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerCaller(t *testing.T) {
	app, calls := setupTestApp(t)

	post(t, app, "/resource", "same-key", "u1")
	post(t, app, "/resource", "same-key", "u2")

	if calls.Load() != 2 {
		t.Fatalf("expected each caller to reach the handler, got %d calls", calls.Load())
	}
}

func TestIdempotencyReleasesKeyOnFailure(t *testing.T) {
	app, calls := setupTestApp(t)

	for i := 0; i < 2; i++ {
		status, _ := post(t, app, "/fails", "retry-me", "u1")
		if status != fiber.StatusConflict {
			t.Fatalf("expected %d got %d", fiber.StatusConflict, status)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected failed request to be retryable, got %d calls", calls.Load())
	}
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	app, calls := setupTestApp(t)

	status, _ := postBody(t, app, "/resource", "pay-once", "u1", `{"amount":100}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected %d got %d", fiber.StatusCreated, status)
	}

	status, _ = postBody(t, app, "/resource", "pay-once", "u1", `{"amount":900}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected %d for changed body got %d", fiber.StatusUnprocessableEntity, status)
	}

	status, _ = postBody(t, app, "/resource", "pay-once", "u1", `{"amount":100}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected replay %d got %d", fiber.StatusCreated, status)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected handler to run once, ran %d times", calls.Load())
	}
}
