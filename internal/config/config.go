package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName            = "BankCards"
	defaultAppEnv             = "development"
	defaultPort               = "8080"
	defaultLogLevel           = "info"
	defaultShutdownDelay      = 10 * time.Second
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultCardBIN            = "400000"
	defaultNumberAttempts     = 5
	defaultTransferAttempts   = 3
	defaultSweepSchedule      = "@daily"
	defaultRateLimitPerMinute = 30
	idemTTLSecondsEnvVar      = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar          = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar     = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar    = "SHUTDOWN_TIMEOUT"
	encryptionKeyEnvVar       = "CARD_ENCRYPTION_KEY"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName            string
	AppEnv             string
	Port               string
	LogLevel           string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CardEncryptionKey  []byte
	CardBIN            string
	NumberAttempts     int
	TransferAttempts   int
	SweepSchedule      string
	RateLimitPerMinute int
	ShutdownPeriod     time.Duration
	IdempotencyTTL     time.Duration
}

// Load reads an optional .env file, then configuration values from the
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             getEnv("APP_ENV", defaultAppEnv),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CardBIN:            getEnv("CARD_BIN", defaultCardBIN),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", defaultSweepSchedule),
		NumberAttempts:     defaultNumberAttempts,
		TransferAttempts:   defaultTransferAttempts,
		RateLimitPerMinute: defaultRateLimitPerMinute,
		ShutdownPeriod:     defaultShutdownDelay,
		IdempotencyTTL:     defaultIdempotencyTTL,
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.NumberAttempts, err = positiveIntFromEnv("CARD_NUMBER_ATTEMPTS", cfg.NumberAttempts); err != nil {
		return Config{}, err
	}
	if cfg.TransferAttempts, err = positiveIntFromEnv("TRANSFER_MAX_ATTEMPTS", cfg.TransferAttempts); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = positiveIntFromEnv("RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute); err != nil {
		return Config{}, err
	}

	// Development may run on in-memory stores without Redis.
	if cfg.DatabaseURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	key, err := hex.DecodeString(os.Getenv(encryptionKeyEnvVar))
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", encryptionKeyEnvVar, err)
	}
	if len(key) != 32 {
		return Config{}, fmt.Errorf("%s must be 32 bytes hex encoded, got %d bytes", encryptionKeyEnvVar, len(key))
	}
	cfg.CardEncryptionKey = key

	if len(cfg.CardBIN) == 0 || len(cfg.CardBIN) > 10 || strings.Trim(cfg.CardBIN, "0123456789") != "" {
		return Config{}, fmt.Errorf("CARD_BIN must be 1 to 10 digits")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func positiveIntFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
