package api

import (
	"time"

	"github.com/marcus/taskflow/internal/config"
)

// Config holds the server settings the HTTP layer needs.
type Config struct {
	ListenAddr      string
	BaseURL         string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	RateLimitRead  int // GET requests per caller per minute (default: 600)
	RateLimitWrite int // mutating requests per caller per minute (default: 120)

	CORSAllowedOrigins []string // empty = disabled
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		BaseURL:         "http://localhost:8080",
		ShutdownTimeout: 30 * time.Second,
		MaxBodyBytes:    1 << 20,
		RateLimitRead:   600,
		RateLimitWrite:  120,
	}
}

// ConfigFrom extracts the HTTP settings from the application config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		ListenAddr:         c.Server.ListenAddr,
		BaseURL:            c.Server.BaseURL,
		ShutdownTimeout:    c.Server.ShutdownTimeout,
		MaxBodyBytes:       c.Server.MaxBodyBytes,
		RateLimitRead:      c.RateLimit.Read,
		RateLimitWrite:     c.RateLimit.Write,
		CORSAllowedOrigins: c.Server.CORSAllowedOrigins,
	}
}
