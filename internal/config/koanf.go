// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/kerbwatch/config.yaml",
	"/etc/kerbwatch/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefixes maps environment variable prefixes to koanf sections.
// SERVER_PORT -> server.port, SECURITY_RATE_LIMIT_REQS -> security.rate_limit_reqs
var envPrefixes = map[string]string{
	"SERVER_":    "server.",
	"DATABASE_":  "database.",
	"BROADCAST_": "broadcast.",
	"API_":       "api.",
	"SECURITY_":  "security.",
	"LOGGING_":   "logging.",
}

// defaultConfig returns a Config with all default values applied.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8097,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // streaming endpoints hold the response open
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Path:                   "/data/kerbwatch.duckdb",
			MaxMemory:              "1GB",
			Threads:                0, // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Broadcast: BroadcastConfig{
			BufferSize: 64,
		},
		API: APIConfig{
			DefaultSinceHours: 24,
			MaxSinceHours:     168,
		},
		Security: SecurityConfig{
			RateLimitReqs:     300,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load assembles the configuration from defaults, an optional YAML file,
// and environment variables, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// CORS origins arrive from the environment as a comma-separated string.
	if origins := k.String("security.cors_origins"); origins != "" && strings.Contains(origins, ",") {
		parts := strings.Split(origins, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := k.Set("security.cors_origins", parts); err != nil {
			return nil, fmt.Errorf("failed to set cors origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches CONFIG_PATH and the default paths for a config
// file. Returns the first path that exists, or empty string.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to koanf paths. Variables
// without a known section prefix are ignored so unrelated environment
// noise never leaks into the configuration.
func envTransform(key string) string {
	for prefix, section := range envPrefixes {
		if strings.HasPrefix(key, prefix) {
			return section + strings.ToLower(strings.TrimPrefix(key, prefix))
		}
	}
	return ""
}
