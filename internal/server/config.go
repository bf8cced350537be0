// Package server provides configuration helpers that define runtime defaults,
// environment loading, and validation for the relay.
package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

// RateLimitConfig defines the parameters for per-session line rate limiting.
// A zero Burst disables limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds every startup parameter of the relay. Fields are read from the
// environment by LoadConfig and may be overridden by CLI flags afterwards.
type Config struct {
	Host           string `env:"HOST,default=127.0.0.1" validate:"required"`
	Port           int    `env:"PORT,default=8888" validate:"gte=0,lte=65535"`
	MaxConnections int    `env:"MAX_CONNECTIONS,default=5" validate:"gte=1,lte=65535"`

	DispatchPollInterval time.Duration `env:"DISPATCH_POLL_INTERVAL,default=1s" validate:"gt=0"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=5s" validate:"gt=0"`
	IdleTimeout          time.Duration `env:"IDLE_TIMEOUT,default=0s" validate:"gte=0"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s" validate:"gt=0"`
	MaxLineLength        int           `env:"MAX_LINE_LENGTH,default=4096" validate:"gte=16"`

	RateLimitBurst          int           `env:"RATE_LIMIT_BURST,default=0" validate:"gte=0"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL,default=1s" validate:"gte=0"`

	// HTTPAddr enables the health, metrics and WebSocket endpoints when set.
	HTTPAddr string `env:"HTTP_ADDR" validate:"omitempty,hostname_port"`
	// AllowedOrigins is a comma separated origin list for WebSocket upgrades; "*" allows any.
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`

	LogLevel string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

func defaultConfig() Config {
	return Config{
		Host:                    "127.0.0.1",
		Port:                    8888,
		MaxConnections:          DefaultMaxConnections,
		DispatchPollInterval:    time.Second,
		WriteTimeout:            5 * time.Second,
		ShutdownTimeout:         5 * time.Second,
		MaxLineLength:           4096,
		RateLimitBurst:          0,
		RateLimitRefillInterval: time.Second,
		AllowedOrigins:          "http://localhost:8080",
		LogLevel:                "INFO",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() Config {
	return defaultConfig()
}

// LoadConfig reads an optional .env file, then the process environment, and
// returns a sanitized, validated Config.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		cfg.Host = def.Host
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = def.MaxConnections
	}
	if cfg.DispatchPollInterval <= 0 {
		cfg.DispatchPollInterval = def.DispatchPollInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.MaxLineLength <= 0 {
		cfg.MaxLineLength = def.MaxLineLength
	}
	if cfg.IdleTimeout < 0 {
		cfg.IdleTimeout = 0
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	cfg.HTTPAddr = strings.TrimSpace(cfg.HTTPAddr)
	return cfg
}

// Validate checks the configuration before any core component is built.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Addr returns the TCP bind address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// RateLimit returns the per-session rate limiting parameters.
func (c Config) RateLimit() RateLimitConfig {
	return RateLimitConfig{
		Burst:          c.RateLimitBurst,
		RefillInterval: c.RateLimitRefillInterval,
	}
}

// Origins returns the parsed WebSocket origin allow-list.
func (c Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

func parseOrigins(origins string) []string {
	if strings.TrimSpace(origins) == "" {
		return nil
	}
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
