package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary    Primary          `koanf:"primary"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	Security   SecurityConfig   `koanf:"security"`
	Providers  ProvidersConfig  `koanf:"providers"`
	Delivery   DeliveryConfig   `koanf:"delivery"`
	Reconciler ReconcilerConfig `koanf:"reconciler"`
	Logger     LoggerConfig     `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type RedisConfig struct {
	Host     string `koanf:"host" validate:"required"`
	Port     int    `koanf:"port" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// SecurityConfig is the process-wide key material. Loaded once at startup
// and injected; never re-read from the environment and never logged.
type SecurityConfig struct {
	// MasterKey is the base64-encoded 256-bit AEAD key for secrets at rest.
	MasterKey string `koanf:"master_key" validate:"required"`
	// AuditHMACKey signs audit log entries for tamper detection.
	AuditHMACKey string        `koanf:"audit_hmac_key" validate:"required"`
	APINonceTTL  time.Duration `koanf:"api_nonce_ttl"`
}

type ProvidersConfig struct {
	Card   ProviderConfig `koanf:"card"`
	Pix    ProviderConfig `koanf:"pix"`
	Boleto ProviderConfig `koanf:"boleto"`
}

type ProviderConfig struct {
	BaseURL       string        `koanf:"base_url" validate:"required"`
	WebhookSecret string        `koanf:"webhook_secret" validate:"required"`
	Timeout       time.Duration `koanf:"timeout" validate:"required"`
}

type DeliveryConfig struct {
	Timeout       time.Duration `koanf:"timeout"`
	MaxAttempts   int           `koanf:"max_attempts"`
	RetryInterval time.Duration `koanf:"retry_interval"`
	BatchSize     int           `koanf:"batch_size"`
}

type ReconcilerConfig struct {
	// Pointers so an explicit midnight schedule survives defaulting.
	RunAtHour   *int          `koanf:"run_at_hour"`
	RunAtMinute *int          `koanf:"run_at_minute"`
	Cooldown    time.Duration `koanf:"cooldown"`
	BatchSize   int           `koanf:"batch_size"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

// NewLogger builds the process logger from the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	mainConfig.applyDefaults()

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func (c *Config) applyDefaults() {
	if c.Security.APINonceTTL == 0 {
		c.Security.APINonceTTL = 2 * time.Minute
	}
	if c.Delivery.Timeout == 0 {
		c.Delivery.Timeout = 10 * time.Second
	}
	if c.Delivery.MaxAttempts == 0 {
		// backoff table length plus one clamped repeat
		c.Delivery.MaxAttempts = 11
	}
	if c.Delivery.RetryInterval == 0 {
		c.Delivery.RetryInterval = time.Minute
	}
	if c.Delivery.BatchSize == 0 {
		c.Delivery.BatchSize = 100
	}
	if c.Reconciler.RunAtHour == nil {
		hour := 2
		c.Reconciler.RunAtHour = &hour
	}
	if c.Reconciler.RunAtMinute == nil {
		minute := 0
		c.Reconciler.RunAtMinute = &minute
	}
	if c.Reconciler.Cooldown == 0 {
		c.Reconciler.Cooldown = 5 * time.Minute
	}
	if c.Reconciler.BatchSize == 0 {
		c.Reconciler.BatchSize = 500
	}
}
