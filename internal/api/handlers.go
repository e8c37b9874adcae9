// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package api

import (
	"context"
	"time"

	"github.com/kerbwatch/kerbwatch/internal/broadcast"
	"github.com/kerbwatch/kerbwatch/internal/config"
	"github.com/kerbwatch/kerbwatch/internal/dedup"
	"github.com/kerbwatch/kerbwatch/internal/models"
)

// Version is the server version reported by health endpoints. Overridden at
// build time via -ldflags.
var Version = "dev"

// EventStore is the read surface the listing and health handlers need.
type EventStore interface {
	ListSince(ctx context.Context, cutoff time.Time) ([]models.Occurrence, error)
	Ping(ctx context.Context) error
}

// Ingester processes one validated detection report.
type Ingester interface {
	Ingest(ctx context.Context, report dedup.Report) (*models.EventResult, error)
}

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	store     EventStore
	ingester  Ingester
	hub       *broadcast.Hub
	cfg       *config.Config
	startTime time.Time
}

// NewHandler creates a handler with the given dependencies.
func NewHandler(store EventStore, ingester Ingester, hub *broadcast.Hub, cfg *config.Config) *Handler {
	return &Handler{
		store:     store,
		ingester:  ingester,
		hub:       hub,
		cfg:       cfg,
		startTime: time.Now(),
	}
}
