// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	// Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8097 {
		t.Errorf("Server.Port = %d, want 8097", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 30s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("Server.WriteTimeout = %v, want 0 (streaming)", cfg.Server.WriteTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}

	// Database defaults
	if cfg.Database.Path != "/data/kerbwatch.duckdb" {
		t.Errorf("Database.Path = %q, want /data/kerbwatch.duckdb", cfg.Database.Path)
	}
	if cfg.Database.MaxMemory != "1GB" {
		t.Errorf("Database.MaxMemory = %q, want 1GB", cfg.Database.MaxMemory)
	}
	if cfg.Database.Threads != 0 {
		t.Errorf("Database.Threads = %d, want 0 (NumCPU)", cfg.Database.Threads)
	}
	if !cfg.Database.PreserveInsertionOrder {
		t.Error("Database.PreserveInsertionOrder should be true by default")
	}

	// Broadcast defaults
	if cfg.Broadcast.BufferSize != 64 {
		t.Errorf("Broadcast.BufferSize = %d, want 64", cfg.Broadcast.BufferSize)
	}

	// API defaults
	if cfg.API.DefaultSinceHours != 24 {
		t.Errorf("API.DefaultSinceHours = %d, want 24", cfg.API.DefaultSinceHours)
	}
	if cfg.API.MaxSinceHours != 168 {
		t.Errorf("API.MaxSinceHours = %d, want 168", cfg.API.MaxSinceHours)
	}

	// Security defaults
	if cfg.Security.RateLimitReqs != 300 {
		t.Errorf("Security.RateLimitReqs = %d, want 300", cfg.Security.RateLimitReqs)
	}
	if cfg.Security.RateLimitWindow != time.Minute {
		t.Errorf("Security.RateLimitWindow = %v, want 1m", cfg.Security.RateLimitWindow)
	}
	if len(cfg.Security.CORSOrigins) != 1 || cfg.Security.CORSOrigins[0] != "*" {
		t.Errorf("Security.CORSOrigins = %v, want [*]", cfg.Security.CORSOrigins)
	}

	// Logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

// TestEnvTransformFunc verifies environment variable name transformations
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Server
		{"SERVER_PORT", "server.port"},
		{"SERVER_HOST", "server.host"},
		{"SERVER_READ_TIMEOUT", "server.read_timeout"},
		{"SERVER_SHUTDOWN_TIMEOUT", "server.shutdown_timeout"},

		// Database
		{"DATABASE_PATH", "database.path"},
		{"DATABASE_MAX_MEMORY", "database.max_memory"},
		{"DATABASE_THREADS", "database.threads"},

		// Broadcast
		{"BROADCAST_BUFFER_SIZE", "broadcast.buffer_size"},

		// API
		{"API_DEFAULT_SINCE_HOURS", "api.default_since_hours"},
		{"API_MAX_SINCE_HOURS", "api.max_since_hours"},

		// Security
		{"SECURITY_RATE_LIMIT_REQS", "security.rate_limit_reqs"},
		{"SECURITY_RATE_LIMIT_DISABLED", "security.rate_limit_disabled"},
		{"SECURITY_CORS_ORIGINS", "security.cors_origins"},

		// Logging
		{"LOGGING_LEVEL", "logging.level"},
		{"LOGGING_FORMAT", "logging.format"},

		// Unknown (should return empty so they are ignored)
		{"PATH", ""},
		{"HOME", ""},
		{"GOPATH", ""},
		{"KERBWATCH_UNKNOWN", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransform(tt.input); got != tt.expected {
				t.Errorf("envTransform(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestLoadEnvOverrides verifies environment variables take priority over
// defaults.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("DATABASE_PATH", "/tmp/test.duckdb")
	t.Setenv("BROADCAST_BUFFER_SIZE", "128")
	t.Setenv("API_DEFAULT_SINCE_HOURS", "6")
	t.Setenv("LOGGING_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Database.Path = %q, want /tmp/test.duckdb", cfg.Database.Path)
	}
	if cfg.Broadcast.BufferSize != 128 {
		t.Errorf("Broadcast.BufferSize = %d, want 128", cfg.Broadcast.BufferSize)
	}
	if cfg.API.DefaultSinceHours != 6 {
		t.Errorf("API.DefaultSinceHours = %d, want 6", cfg.API.DefaultSinceHours)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep their defaults.
	if cfg.Security.RateLimitReqs != 300 {
		t.Errorf("Security.RateLimitReqs = %d, want default 300", cfg.Security.RateLimitReqs)
	}
}

// TestLoadCORSOriginsCommaSplit verifies that a comma-separated CORS origin
// list from the environment becomes a slice.
func TestLoadCORSOriginsCommaSplit(t *testing.T) {
	t.Setenv("SECURITY_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.Security.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Security.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Security.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Security.CORSOrigins[i], want[i])
		}
	}
}

// TestLoadConfigFile verifies YAML file loading via CONFIG_PATH, and that
// environment variables still win over the file.
func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 8200\napi:\n  default_since_hours: 12\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("API_DEFAULT_SINCE_HOURS", "48")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8200 {
		t.Errorf("Server.Port = %d, want 8200 from config file", cfg.Server.Port)
	}
	if cfg.API.DefaultSinceHours != 48 {
		t.Errorf("API.DefaultSinceHours = %d, want 48 (env over file)", cfg.API.DefaultSinceHours)
	}
}

// TestLoadRejectsInvalidConfig verifies that validation failures surface
// from Load.
func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "70000")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject an out-of-range port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, true},
		{"buffer size zero", func(c *Config) { c.Broadcast.BufferSize = 0 }, true},
		{"default hours zero", func(c *Config) { c.API.DefaultSinceHours = 0 }, true},
		{"max below default", func(c *Config) { c.API.MaxSinceHours = 10; c.API.DefaultSinceHours = 24 }, true},
		{"rate limit zero", func(c *Config) { c.Security.RateLimitReqs = 0 }, true},
		{"rate limit zero but disabled", func(c *Config) {
			c.Security.RateLimitReqs = 0
			c.Security.RateLimitDisabled = true
		}, false},
		{"console format", func(c *Config) { c.Logging.Format = "console" }, false},
		{"bogus format", func(c *Config) { c.Logging.Format = "xml" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfigAddr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8097}
	if c.Addr() != "127.0.0.1:8097" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8097", c.Addr())
	}
}
