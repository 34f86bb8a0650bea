package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/congo-pay/bankcards/internal/config"
	"github.com/congo-pay/bankcards/internal/routes"
	"github.com/congo-pay/bankcards/internal/sweeper"
)

// Server wraps the Fiber application, the expiration scheduler and shared
// dependencies.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	db       *pgxpool.Pool
	cache    *redis.Client
	logger   *slog.Logger
	services *routes.Services
	cron     *cron.Cron
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: errorHandler,
	})

	services, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	scheduler := sweeper.NewScheduler(logger)
	if _, err := sweeper.Schedule(scheduler, cfg.SweepSchedule, services.Sweeper, time.Now); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, db: db, cache: cache, logger: logger, services: services, cron: scheduler}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Services exposes the wired domain components.
func (s *Server) Services() *routes.Services { return s.services }

// Listen starts the expiration scheduler and the HTTP server.
func (s *Server) Listen() error {
	s.cron.Start()
	s.logger.Info("expiration sweep scheduled", "schedule", s.cfg.SweepSchedule)
	return s.app.Listen(s.cfg.Address())
}

// Shutdown stops the scheduler, waits for a running sweep and gracefully
// stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	sweepDone := s.cron.Stop()
	httpErr := s.app.ShutdownWithContext(ctx)
	select {
	case <-sweepDone.Done():
	case <-ctx.Done():
		return errors.Join(httpErr, ctx.Err())
	}
	return httpErr
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = http.StatusText(code)
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}
