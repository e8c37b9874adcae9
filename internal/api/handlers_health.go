// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package api

import (
	"net/http"
	"time"

	"github.com/kerbwatch/kerbwatch/internal/models"
)

// Health handles GET /api/v1/health with a full status report.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dbConnected := h.store.Ping(r.Context()) == nil

	status := "healthy"
	httpStatus := http.StatusOK
	if !dbConnected {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	respondJSON(w, httpStatus, &models.APIResponse{
		Status: "success",
		Data: models.HealthStatus{
			Status:            status,
			Version:           Version,
			DatabaseConnected: dbConnected,
			Subscribers:       h.hub.SubscriberCount(),
			Uptime:            time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
	})
}

// HealthLive handles GET /api/v1/health/live. It answers 200 whenever the
// process is serving requests; no dependency checks.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"alive"}`))
}

// HealthReady handles GET /api/v1/health/ready. Ready means the database
// answers a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
