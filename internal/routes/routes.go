package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankcards/internal/card"
	"github.com/congo-pay/bankcards/internal/config"
	"github.com/congo-pay/bankcards/internal/identity"
	"github.com/congo-pay/bankcards/internal/logging"
	"github.com/congo-pay/bankcards/internal/middleware"
	"github.com/congo-pay/bankcards/internal/notification"
	"github.com/congo-pay/bankcards/internal/sweeper"
	"github.com/congo-pay/bankcards/internal/transfer"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Now overrides the clock for every component. Nil means time.Now.
	Now func() time.Time
}

// Services exposes the components built during Setup that run outside the
// request path.
type Services struct {
	Identity *identity.Service
	Cards    *card.Manager
	Vault    *card.Vault
	Engine   *transfer.Engine
	Sweeper  *sweeper.Sweeper
	// DevUsers lists the users seeded into the in-memory directory.
	DevUsers []identity.User
}

// devUsers are provisioned when the service runs without a database so
// tokens can be minted for their ids.
var devUsers = []struct {
	username string
	role     card.Role
}{
	{username: "admin", role: card.RoleAdmin},
	{username: "user", role: card.RoleUser},
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (*Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Logger = logging.OrDiscard(d.Logger)

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	svc, err := build(d)
	if err != nil {
		return nil, err
	}
	if d.DB == nil {
		if svc.DevUsers, err = seedDevUsers(svc.Identity, d.Logger); err != nil {
			return nil, err
		}
	}

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  d.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Protected routes
	protected := api.Group("", middleware.JWTAuth([]byte(d.Cfg.JWTSecret), svc.Identity))
	mutating := transferGuards(d)

	cardHandler := card.NewHandler(svc.Cards, svc.Vault)
	transferHandler := transfer.NewHandler(svc.Engine)
	RegisterCardRoutes(protected, cardHandler, transferHandler, mutating)
	RegisterAdminRoutes(protected, cardHandler, transferHandler, mutating)

	return svc, nil
}

func build(d Deps) (*Services, error) {
	var (
		cardStore    card.Store
		identityRepo identity.Repository
	)
	if d.DB != nil {
		cardStore = card.NewPostgresStore(d.DB)
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		cardStore = card.NewMemoryStore()
		identityRepo = identity.NewMemoryRepository()
	}

	cipher, err := card.NewCipher(d.Cfg.CardEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("card cipher: %w", err)
	}

	identitySvc := identity.NewService(identityRepo)
	notifier := notification.NewLoggerNotifier(d.Logger)
	manager := card.NewManager(cardStore, d.Now, d.Logger)
	vault := card.NewVault(cardStore, identitySvc, cipher, card.VaultConfig{
		BIN:      d.Cfg.CardBIN,
		Attempts: d.Cfg.NumberAttempts,
		Now:      d.Now,
	}, d.Logger)
	engine := transfer.NewEngine(cardStore, notifier, transfer.Config{
		MaxAttempts: d.Cfg.TransferAttempts,
		Now:         d.Now,
	}, d.Logger)

	return &Services{
		Identity: identitySvc,
		Cards:    manager,
		Vault:    vault,
		Engine:   engine,
		Sweeper:  sweeper.New(cardStore, manager, notifier, d.Logger),
	}, nil
}

func seedDevUsers(directory *identity.Service, logger *slog.Logger) ([]identity.User, error) {
	seeded := make([]identity.User, 0, len(devUsers))
	for _, u := range devUsers {
		user, err := directory.Provision(context.Background(), u.username, u.role)
		if err != nil {
			return nil, fmt.Errorf("seed dev user %s: %w", u.username, err)
		}
		logger.Info("dev user provisioned", "user_id", user.ID, "username", user.Username, "role", string(user.Role))
		seeded = append(seeded, user)
	}
	return seeded, nil
}

// transferGuards returns the middleware stack for money-moving POSTs.
func transferGuards(d Deps) []fiber.Handler {
	guards := []fiber.Handler{middleware.RateLimit(d.Cache, "transfer", d.Cfg.RateLimitPerMinute)}
	if d.Cache != nil {
		guards = append(guards, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	return guards
}

// withGuards returns a fresh handler chain so routes never share a backing array.
func withGuards(guards []fiber.Handler, h fiber.Handler) []fiber.Handler {
	chain := make([]fiber.Handler, 0, len(guards)+1)
	return append(append(chain, guards...), h)
}
