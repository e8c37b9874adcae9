// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Command server runs the Kerbwatch backend: the ingest API, the
// deduplicated occurrence store, and the live event fan-out.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/kerbwatch/kerbwatch/internal/api"
	"github.com/kerbwatch/kerbwatch/internal/broadcast"
	"github.com/kerbwatch/kerbwatch/internal/config"
	"github.com/kerbwatch/kerbwatch/internal/database"
	"github.com/kerbwatch/kerbwatch/internal/ingest"
	"github.com/kerbwatch/kerbwatch/internal/logging"
	"github.com/kerbwatch/kerbwatch/internal/supervisor"
	"github.com/kerbwatch/kerbwatch/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("addr", cfg.Server.Addr()).
		Msg("Starting kerbwatch server")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close database")
		}
	}()

	hub := broadcast.NewHub(cfg.Broadcast.BufferSize)
	pipeline := ingest.New(db, hub)

	handler := api.NewHandler(db, pipeline, hub, cfg)
	mw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins:   cfg.Security.CORSOrigins,
		CORSAllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Content-Type", "Authorization"},
		CORSAllowCredentials: false,
		CORSMaxAge:           86400,
		RateLimitRequests:    cfg.Security.RateLimitReqs,
		RateLimitWindow:      cfg.Security.RateLimitWindow,
		RateLimitDisabled:    cfg.Security.RateLimitDisabled,
	})
	router := api.NewRouter(handler, mw)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build supervisor tree")
	}

	tree.AddMessagingService(services.NewBroadcastHubService(hub))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("Supervisor tree exited with error")
	}

	logging.Info().Msg("Server stopped")
}
