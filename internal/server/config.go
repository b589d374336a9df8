// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/roomrelay/internal/app"
)

const (
	defaultPort           = ":8000"
	defaultMaxMessageSize = 4096
	defaultSendBuffer     = 256
	defaultBurst          = 20
)

var defaultOrigins = []string{"http://localhost:8000", "http://localhost:3000"}

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Env            string
	Port           string
	AllowedOrigins []string
	CORSAllow      []string
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      RateLimitConfig
	RedisAddr      string
	RedisDB        int
	SeedRooms      bool
}

func defaultConfig() Config {
	return Config{
		Env:            "dev",
		Port:           defaultPort,
		AllowedOrigins: append([]string(nil), defaultOrigins...),
		CORSAllow:      append([]string(nil), defaultOrigins...),
		MaxMessageSize: defaultMaxMessageSize,
		SendBuffer:     defaultSendBuffer,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: time.Second,
		},
		SeedRooms: true,
	}
}

// sanitize replaces out-of-range values with defaults.
func (cfg Config) sanitize() Config {
	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	cfg.CORSAllow = append([]string(nil), cfg.CORSAllow...)
	return cfg
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	cfg.Env = app.Getenv("APP_ENV", cfg.Env)
	cfg.Port = app.Getenv("SERVER_PORT", cfg.Port)

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = app.SplitCSV(origins)
	}
	if allow := os.Getenv("CORS_ALLOW"); allow != "" {
		cfg.CORSAllow = app.SplitCSV(allow)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if buf := os.Getenv("SEND_BUFFER"); buf != "" {
		cfg.SendBuffer = app.ParsePositiveInt(buf, cfg.SendBuffer)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = app.ParsePositiveInt(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	if db := os.Getenv("REDIS_DB"); db != "" {
		if parsed, err := strconv.Atoi(db); err == nil && parsed >= 0 {
			cfg.RedisDB = parsed
		}
	}

	if seed := os.Getenv("SEED_ROOMS"); seed != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(seed)); err == nil {
			cfg.SeedRooms = parsed
		}
	}

	return &cfg
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds := app.ParsePositiveInt(value, 0); seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
