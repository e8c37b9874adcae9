// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Package ingest wires the dedup core to the store and the broadcast hub:
// derive keys, resolve against the window candidate, commit, then publish.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kerbwatch/kerbwatch/internal/broadcast"
	"github.com/kerbwatch/kerbwatch/internal/database"
	"github.com/kerbwatch/kerbwatch/internal/dedup"
	"github.com/kerbwatch/kerbwatch/internal/logging"
	"github.com/kerbwatch/kerbwatch/internal/metrics"
	"github.com/kerbwatch/kerbwatch/internal/models"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	FindCandidate(ctx context.Context, gridKey, eventType string, windowStart time.Time) (*models.Occurrence, error)
	InsertOccurrence(ctx context.Context, occ *models.Occurrence) error
	UpdateOccurrence(ctx context.Context, occ *models.Occurrence) error
}

// Publisher receives committed events for live fan-out.
type Publisher interface {
	Publish(msg broadcast.Message)
}

// Pipeline processes validated detection reports end to end.
type Pipeline struct {
	store Store
	pub   Publisher
	locks keyLock
}

// New creates a pipeline over the given store and publisher.
func New(store Store, pub Publisher) *Pipeline {
	return &Pipeline{store: store, pub: pub}
}

// Ingest applies one report: derive dedup keys, look up the merge candidate
// inside the sliding window, resolve, commit, and only then publish to live
// subscribers. Returns the committed snapshot and whether it was created or
// merged.
//
// Ingestion is serialized per (gridKey, type), so concurrent duplicates of
// the same hazard resolve to a single record. A nothing-published guarantee
// holds on any store error.
func (p *Pipeline) Ingest(ctx context.Context, report dedup.Report) (*models.EventResult, error) {
	start := time.Now()
	report.Timestamp = report.Timestamp.UTC()
	keys := dedup.Derive(report.Lat, report.Lon, report.Type, report.Timestamp)

	unlock := p.locks.lock(keys.GridKey, report.Type)
	defer unlock()

	result, err := p.resolveAndCommit(ctx, report, keys)
	if err != nil {
		metrics.IngestReportsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.IngestReportsTotal.WithLabelValues(string(result.Kind)).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	// Publish strictly after the commit so subscribers never observe an
	// event the store does not hold.
	p.pub.Publish(broadcast.Message{Kind: string(result.Kind), Event: *result.Occurrence})

	logging.Debug().
		Str("kind", string(result.Kind)).
		Str("grid_key", keys.GridKey).
		Str("type", report.Type).
		Int("occurrence_count", result.Occurrence.OccurrenceCount).
		Msg("Report ingested")

	return &models.EventResult{Kind: string(result.Kind), Event: *result.Occurrence}, nil
}

type commitResult struct {
	Kind       dedup.Kind
	Occurrence *models.Occurrence
}

// resolveAndCommit runs the candidate lookup, merge resolution, and store
// write. When an update loses to a concurrent delete (the row vanished
// between lookup and write) it re-resolves once from scratch.
func (p *Pipeline) resolveAndCommit(ctx context.Context, report dedup.Report, keys dedup.Keys) (*commitResult, error) {
	for attempt := 0; ; attempt++ {
		existing, err := p.store.FindCandidate(ctx, keys.GridKey, report.Type, dedup.WindowStart(report.Timestamp))
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("candidate lookup failed: %w", err)
		}

		occ, kind := dedup.Resolve(existing, report, keys)

		if kind == dedup.KindNew {
			if err := p.store.InsertOccurrence(ctx, &occ); err != nil {
				return nil, fmt.Errorf("insert failed: %w", err)
			}
			return &commitResult{Kind: kind, Occurrence: &occ}, nil
		}

		err = p.store.UpdateOccurrence(ctx, &occ)
		if err == nil {
			return &commitResult{Kind: kind, Occurrence: &occ}, nil
		}
		if errors.Is(err, database.ErrNotFound) && attempt == 0 {
			metrics.IngestRetriesTotal.Inc()
			logging.Warn().
				Str("grid_key", keys.GridKey).
				Str("type", report.Type).
				Msg("Update target vanished, re-resolving")
			continue
		}
		return nil, fmt.Errorf("update failed: %w", err)
	}
}
