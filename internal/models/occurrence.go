// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Package models defines the data structures shared across Kerbwatch:
// the deduplicated occurrence record and the HTTP response envelope.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Occurrence is the deduplicated, mutable aggregate representing one
// real-world detection over time. Repeated reports of the same physical
// occurrence collapse into a single record whose lifetime extends as long
// as reports keep arriving within the merge window.
//
// Field stability across merges:
//   - ID, Type, SourceID, FirstSeenAt, GridKey, DedupGroupID: immutable
//     after creation. SourceID is recorded from the first report only.
//   - LastSeenAt: monotonically non-decreasing.
//   - Lat, Lon: overwritten with the latest report's position (not averaged).
//   - Confidence: running maximum over all merged reports.
//   - OccurrenceCount: starts at 1, incremented by exactly 1 per merge.
//
// DedupGroupID is a diagnostic label built from the grid key, type, and a
// fixed 600 s time bucket. It is persisted for observability only; matching
// uses a sliding window over LastSeenAt and deliberately ignores bucket
// boundaries.
type Occurrence struct {
	ID              uuid.UUID `json:"id"`
	Type            string    `json:"type"`
	SourceID        string    `json:"source_id"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
	Lat             float64   `json:"lat"`
	Lon             float64   `json:"lon"`
	Confidence      float64   `json:"confidence"`
	GridKey         string    `json:"grid_key"`
	OccurrenceCount int       `json:"occurrence_count"`
	DedupGroupID    string    `json:"dedup_group_id"`
}

// EventResult is the ingestion outcome returned to the caller and fanned
// out to live subscribers: the result kind ("new" or "update") plus a
// materialized snapshot of the occurrence at commit time.
type EventResult struct {
	Kind  string     `json:"kind"`
	Event Occurrence `json:"event"`
}

// OccurrenceList wraps a listing response with its window and total count.
type OccurrenceList struct {
	Total  int          `json:"total"`
	Hours  int          `json:"hours"`
	Events []Occurrence `json:"events"`
}

// HealthStatus reports service health for monitoring probes.
type HealthStatus struct {
	Status            string  `json:"status"`
	Version           string  `json:"version"`
	DatabaseConnected bool    `json:"database_connected"`
	Subscribers       int     `json:"subscribers"`
	Uptime            float64 `json:"uptime_seconds"`
}
