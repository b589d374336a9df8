// Package client is the participant side of the relay: a room directory kept
// current by two independent writers, the live push stream and a periodic
// reconciliation against the resource endpoint.
package client

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/Tyrowin/roomrelay/internal/app"
)

// MinRefreshInterval is the shortest reconciliation period accepted.
const MinRefreshInterval = 5 * time.Second

// Config holds the participant settings.
type Config struct {
	Env             string
	ServerURL       string
	WSURL           string
	Username        string
	RefreshInterval time.Duration
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Env:             "dev",
		ServerURL:       "http://localhost:8000",
		Username:        "Alice",
		RefreshInterval: MinRefreshInterval,
	}
}

// NewConfigFromEnv reads SERVER_URL, WS_URL, CHAT_USERNAME and
// REFRESH_INTERVAL (seconds), keeping defaults for unset values.
func NewConfigFromEnv() *Config {
	cfg := NewConfig()
	cfg.Env = app.Getenv("APP_ENV", cfg.Env)
	cfg.ServerURL = app.Getenv("SERVER_URL", cfg.ServerURL)
	cfg.WSURL = os.Getenv("WS_URL")
	cfg.Username = app.Getenv("CHAT_USERNAME", cfg.Username)
	if v := os.Getenv("REFRESH_INTERVAL"); v != "" {
		cfg.RefreshInterval = time.Duration(app.ParsePositiveInt(v, 5)) * time.Second
	}
	return cfg
}

// Interval returns the refresh interval, raised to MinRefreshInterval.
func (c Config) Interval() time.Duration {
	return max(c.RefreshInterval, MinRefreshInterval)
}

// WebSocketURL returns WSURL, or the relay endpoint derived from ServerURL.
func (c Config) WebSocketURL() (string, error) {
	if c.WSURL != "" {
		return c.WSURL, nil
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Origin is the Origin header sent on the WebSocket handshake.
func (c Config) Origin() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
