// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kerbwatch/kerbwatch/internal/metrics"
	"github.com/kerbwatch/kerbwatch/internal/models"
)

// FindCandidate returns the merge candidate for a (gridKey, type) pair: the
// occurrence with the greatest last_seen_at at or after windowStart. The
// boundary is inclusive. Ties on last_seen_at break on the lowest id so the
// choice is deterministic. Returns ErrNotFound when no occurrence qualifies.
func (db *DB) FindCandidate(ctx context.Context, gridKey, eventType string, windowStart time.Time) (*models.Occurrence, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer metrics.ObserveDBQuery("find_candidate", time.Now())

	query := `SELECT
		id, type, source_id, first_seen_at, last_seen_at,
		lat, lon, confidence, grid_key, occurrence_count, dedup_group_id
	FROM occurrences
	WHERE grid_key = ? AND type = ? AND last_seen_at >= ?
	ORDER BY last_seen_at DESC, id ASC
	LIMIT 1`

	row := db.conn.QueryRowContext(ctx, query, gridKey, eventType, windowStart)
	occ, err := scanOccurrence(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find merge candidate: %w", err)
	}
	return occ, nil
}

// InsertOccurrence persists a brand-new occurrence. A primary key collision
// surfaces as ErrDuplicateID.
func (db *DB) InsertOccurrence(ctx context.Context, occ *models.Occurrence) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer metrics.ObserveDBQuery("insert_occurrence", time.Now())

	query := `INSERT INTO occurrences (
		id, type, source_id, first_seen_at, last_seen_at,
		lat, lon, confidence, grid_key, occurrence_count, dedup_group_id
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.ExecContext(ctx, query,
		occ.ID, occ.Type, occ.SourceID, occ.FirstSeenAt.UTC(), occ.LastSeenAt.UTC(),
		occ.Lat, occ.Lon, occ.Confidence, occ.GridKey, occ.OccurrenceCount, occ.DedupGroupID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("failed to insert occurrence: %w", err)
	}
	return nil
}

// UpdateOccurrence rewrites the mutable fields of an existing occurrence.
// Immutable fields (type, source_id, first_seen_at, grid_key, dedup_group_id)
// are deliberately absent from the SET list. Returns ErrNotFound when the id
// matches no row, which the pipeline treats as a lost race and retries.
func (db *DB) UpdateOccurrence(ctx context.Context, occ *models.Occurrence) error {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer metrics.ObserveDBQuery("update_occurrence", time.Now())

	query := `UPDATE occurrences SET
		last_seen_at = ?,
		lat = ?,
		lon = ?,
		confidence = ?,
		occurrence_count = ?
	WHERE id = ?`

	result, err := db.conn.ExecContext(ctx, query,
		occ.LastSeenAt.UTC(), occ.Lat, occ.Lon, occ.Confidence, occ.OccurrenceCount, occ.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update occurrence: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOccurrence retrieves a single occurrence by id.
func (db *DB) GetOccurrence(ctx context.Context, id uuid.UUID) (*models.Occurrence, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer metrics.ObserveDBQuery("get_occurrence", time.Now())

	query := `SELECT
		id, type, source_id, first_seen_at, last_seen_at,
		lat, lon, confidence, grid_key, occurrence_count, dedup_group_id
	FROM occurrences WHERE id = ?`

	occ, err := scanOccurrence(db.conn.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get occurrence: %w", err)
	}
	return occ, nil
}

// ListSince returns all occurrences last seen at or after the cutoff,
// newest first.
func (db *DB) ListSince(ctx context.Context, cutoff time.Time) ([]models.Occurrence, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()
	defer metrics.ObserveDBQuery("list_since", time.Now())

	query := `SELECT
		id, type, source_id, first_seen_at, last_seen_at,
		lat, lon, confidence, grid_key, occurrence_count, dedup_group_id
	FROM occurrences
	WHERE last_seen_at >= ?
	ORDER BY last_seen_at DESC, id ASC`

	rows, err := db.conn.QueryContext(ctx, query, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list occurrences: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	occurrences := make([]models.Occurrence, 0, 16)
	for rows.Next() {
		occ, err := scanOccurrence(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan occurrence row: %w", err)
		}
		occurrences = append(occurrences, *occ)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("occurrence iteration failed: %w", err)
	}
	return occurrences, nil
}

// CountOccurrences returns the total number of stored occurrences.
func (db *DB) CountOccurrences(ctx context.Context) (int64, error) {
	ctx, cancel := db.ensureContext(ctx)
	defer cancel()

	var count int64
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM occurrences`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count occurrences: %w", err)
	}
	return count, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOccurrence(row rowScanner) (*models.Occurrence, error) {
	occ := &models.Occurrence{}
	err := row.Scan(
		&occ.ID, &occ.Type, &occ.SourceID, &occ.FirstSeenAt, &occ.LastSeenAt,
		&occ.Lat, &occ.Lon, &occ.Confidence, &occ.GridKey, &occ.OccurrenceCount, &occ.DedupGroupID,
	)
	if err != nil {
		return nil, err
	}
	// DuckDB TIMESTAMP columns come back without a location.
	occ.FirstSeenAt = occ.FirstSeenAt.UTC()
	occ.LastSeenAt = occ.LastSeenAt.UTC()
	return occ, nil
}

func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "constraint")
}
