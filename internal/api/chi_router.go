// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers and middleware into the HTTP routing table.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router over the given handler and middleware factory.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: mw,
	}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight

	// ========================
	// Health Endpoints
	// ========================
	// Permissive rate limiting so monitoring can poll frequently.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
		r.Get("/", router.handler.Health)
	})

	// ========================
	// Core API Endpoints
	// ========================
	r.Route("/api/v1/events", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Post("/", router.handler.IngestEvent)
		r.Get("/", router.handler.ListEvents)
	})

	// ========================
	// Streaming Endpoints
	// ========================
	// Limit only the connection rate; events flow unmetered once attached.
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitStream())
		r.Use(PrometheusMetrics())

		r.Get("/api/v1/stream", router.handler.StreamEvents)
		r.Get("/api/v1/ws", router.handler.WebSocket)
	})

	// ========================
	// Observability
	// ========================
	r.Handle("/metrics", promhttp.Handler())

	return r
}
