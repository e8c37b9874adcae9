// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Package config provides layered configuration loading via Koanf v2.
//
// Configuration is assembled from three sources (highest priority wins):
//  1. Environment variables (SERVER_PORT, DATABASE_PATH, ...)
//  2. Optional YAML config file (config.yaml, or CONFIG_PATH override)
//  3. Built-in defaults
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Kerbwatch server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	API       APIConfig       `koanf:"api"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	ReadTimeout time.Duration `koanf:"read_timeout"`

	// WriteTimeout bounds each response write. It defaults to zero and must
	// stay zero while the SSE and WebSocket endpoints are in use: a nonzero
	// value cuts long-lived streams off. Slow-request protection comes from
	// ReadTimeout and the rate limiter instead.
	WriteTimeout time.Duration `koanf:"write_timeout"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address in host:port form.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds DuckDB settings. An empty Path opens an in-memory
// database, which is what the tests use.
type DatabaseConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"`
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// BroadcastConfig holds live fan-out settings.
type BroadcastConfig struct {
	// BufferSize is the per-subscriber channel capacity. When a subscriber's
	// buffer is full, further messages are dropped for that subscriber only.
	BufferSize int `koanf:"buffer_size"`
}

// APIConfig holds request parameter bounds for the HTTP API.
type APIConfig struct {
	// DefaultSinceHours is the listing window applied when the caller omits
	// the hours parameter.
	DefaultSinceHours int `koanf:"default_since_hours"`
	// MaxSinceHours caps the listing window (168 = 7 days).
	MaxSinceHours int `koanf:"max_since_hours"`
}

// SecurityConfig holds rate limiting and CORS settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would prevent startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Broadcast.BufferSize < 1 {
		return fmt.Errorf("broadcast.buffer_size must be positive, got %d", c.Broadcast.BufferSize)
	}
	if c.API.DefaultSinceHours < 1 {
		return fmt.Errorf("api.default_since_hours must be positive, got %d", c.API.DefaultSinceHours)
	}
	if c.API.MaxSinceHours < c.API.DefaultSinceHours {
		return fmt.Errorf("api.max_since_hours (%d) must be >= api.default_since_hours (%d)",
			c.API.MaxSinceHours, c.API.DefaultSinceHours)
	}
	if !c.Security.RateLimitDisabled && c.Security.RateLimitReqs < 1 {
		return fmt.Errorf("security.rate_limit_reqs must be positive, got %d", c.Security.RateLimitReqs)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
