// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package dedup

import (
	"time"

	"github.com/google/uuid"

	"github.com/kerbwatch/kerbwatch/internal/models"
)

// Kind tags the outcome of a merge resolution.
type Kind string

const (
	// KindNew marks a report that created a fresh occurrence.
	KindNew Kind = "new"
	// KindUpdate marks a report that merged into an existing occurrence.
	KindUpdate Kind = "update"
)

// Report is one validated detection report entering the dedup core.
type Report struct {
	Type       string
	SourceID   string
	Lat        float64
	Lon        float64
	Confidence float64
	Timestamp  time.Time
}

// Resolve computes the occurrence resulting from applying a report against
// an optional existing candidate. It is a pure function from (existing
// snapshot, report, derived keys) to (new snapshot, kind); the caller is
// responsible for having selected the candidate via the window query and
// for committing the result.
//
// On merge:
//   - last_seen_at advances to the report timestamp but never regresses,
//     so an out-of-order report inside the window still merges without
//     rewinding the record.
//   - occurrence_count increments by exactly 1.
//   - confidence keeps the running maximum.
//   - lat/lon are overwritten with the report's position.
//   - id, type, source_id, first_seen_at, grid_key, dedup_group_id are
//     untouched.
func Resolve(existing *models.Occurrence, report Report, keys Keys) (models.Occurrence, Kind) {
	if existing == nil {
		return models.Occurrence{
			ID:              uuid.New(),
			Type:            report.Type,
			SourceID:        report.SourceID,
			FirstSeenAt:     report.Timestamp,
			LastSeenAt:      report.Timestamp,
			Lat:             report.Lat,
			Lon:             report.Lon,
			Confidence:      report.Confidence,
			GridKey:         keys.GridKey,
			OccurrenceCount: 1,
			DedupGroupID:    keys.GroupLabel,
		}, KindNew
	}

	merged := *existing
	if report.Timestamp.After(merged.LastSeenAt) {
		merged.LastSeenAt = report.Timestamp
	}
	merged.OccurrenceCount++
	if report.Confidence > merged.Confidence {
		merged.Confidence = report.Confidence
	}
	merged.Lat = report.Lat
	merged.Lon = report.Lon
	return merged, KindUpdate
}
