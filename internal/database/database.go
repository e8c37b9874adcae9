// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Package database wraps the embedded DuckDB store holding deduplicated
// hazard occurrences.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/kerbwatch/kerbwatch/internal/config"
	"github.com/kerbwatch/kerbwatch/internal/logging"
)

// defaultQueryTimeout bounds operations whose callers did not set a deadline.
const defaultQueryTimeout = 30 * time.Second

// DB wraps the DuckDB connection and provides occurrence access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New opens (or creates) the database and initializes the schema.
// An empty cfg.Path opens an in-memory database, which tests rely on.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure the parent directory exists for a file-backed database.
	// 0750 per gosec G301.
	if cfg.Path != "" {
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}

	// Disable auto-install/auto-load of extensions to prevent hangs in
	// restricted network environments.
	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, numThreads, cfg.MaxMemory, preserveOrder)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	// DuckDB is an embedded single-writer engine; a small pool is enough
	// and keeps memory bounded.
	conn.SetMaxOpenConns(numThreads)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(0)

	if err := db.initialize(); err != nil {
		closeQuietly(conn)
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	logging.Info().
		Str("path", displayPath(cfg.Path)).
		Int("threads", numThreads).
		Msg("Database initialized")

	return db, nil
}

// initialize creates the occurrences table and its indexes.
func (db *DB) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultQueryTimeout)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS occurrences (
			id UUID PRIMARY KEY,
			type VARCHAR NOT NULL,
			source_id VARCHAR NOT NULL,
			first_seen_at TIMESTAMP NOT NULL,
			last_seen_at TIMESTAMP NOT NULL,
			lat DOUBLE NOT NULL,
			lon DOUBLE NOT NULL,
			confidence DOUBLE NOT NULL,
			grid_key VARCHAR NOT NULL,
			occurrence_count INTEGER NOT NULL,
			dedup_group_id VARCHAR NOT NULL
		)`,
		// Serves the candidate window lookup.
		`CREATE INDEX IF NOT EXISTS idx_occurrences_grid_type_seen
			ON occurrences (grid_key, type, last_seen_at)`,
		// Serves the recent-events listing.
		`CREATE INDEX IF NOT EXISTS idx_occurrences_last_seen
			ON occurrences (last_seen_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// ensureContext returns a context with a default timeout when the caller
// supplied none, so queries cannot hang indefinitely.
func (db *DB) ensureContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), defaultQueryTimeout)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		return context.WithTimeout(ctx, defaultQueryTimeout)
	}
	return ctx, func() {}
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	return db.conn.PingContext(ctx)
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func closeQuietly(conn *sql.DB) {
	if err := conn.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close database connection")
	}
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}
