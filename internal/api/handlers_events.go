// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package api

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/kerbwatch/kerbwatch/internal/dedup"
	"github.com/kerbwatch/kerbwatch/internal/models"
)

// IngestRequest is the wire payload for POST /api/v1/events.
type IngestRequest struct {
	Type       string  `json:"type" validate:"required"`
	SourceID   string  `json:"source_id" validate:"required"`
	Lat        float64 `json:"lat" validate:"latitude"`
	Lon        float64 `json:"lon" validate:"longitude"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Timestamp  string  `json:"timestamp" validate:"required"`
}

// IngestEvent handles POST /api/v1/events. The report is validated, run
// through the dedup pipeline, and the committed result is returned with kind
// "new" or "update".
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Request body is not valid JSON", err)
		return
	}

	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now().UTC()},
			Error:    apiErr,
		})
		return
	}

	ts, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "timestamp must be RFC3339", err)
		return
	}

	result, err := h.ingester.Ingest(r.Context(), dedup.Report{
		Type:       req.Type,
		SourceID:   req.SourceID,
		Lat:        req.Lat,
		Lon:        req.Lon,
		Confidence: req.Confidence,
		Timestamp:  ts,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INGEST_FAILED", "Failed to process report", err)
		return
	}

	status := http.StatusOK
	if result.Kind == "new" {
		status = http.StatusCreated
	}
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   result,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// ListEvents handles GET /api/v1/events. The hours parameter selects the
// lookback window (default from config, capped at the configured maximum);
// out-of-range values are clamped rather than rejected.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	hours := getIntParam(r, "hours", h.cfg.API.DefaultSinceHours)
	if hours < 1 {
		hours = 1
	}
	if hours > h.cfg.API.MaxSinceHours {
		hours = h.cfg.API.MaxSinceHours
	}

	cutoff := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	events, err := h.store.ListSince(r.Context(), cutoff)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "QUERY_FAILED", "Failed to list events", err)
		return
	}

	respondJSON(w, http.StatusOK, &models.APIResponse{
		Status: "success",
		Data: models.OccurrenceList{
			Total:  len(events),
			Hours:  hours,
			Events: events,
		},
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}
