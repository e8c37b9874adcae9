// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Package dedup implements the deduplication core: spatial/temporal key
// derivation and the merge resolver that decides whether an incoming
// detection report continues an existing occurrence or starts a new one.
//
// All functions in this package are pure: identical inputs always produce
// byte-identical outputs, and nothing here touches the store. The ingest
// pipeline owns locking and persistence.
package dedup

import (
	"math"
	"strconv"
	"time"
)

// TimeWindow is the sliding merge window. A report merges into an existing
// occurrence when it arrives within this window of the occurrence's
// last_seen_at. The same width is used for the diagnostic time bucket, but
// matching is anchored to last_seen_at, not to bucket boundaries.
const TimeWindow = 600 * time.Second

// gridScale snaps coordinates to 4 decimal places, roughly 11 m at the
// equator. Two points straddling a cell boundary get different grid keys
// even if physically close; that imprecision is accepted.
const gridScale = 1e4

// bucketAnchor is the fixed epoch for time bucket indexes.
var bucketAnchor = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Keys holds the derived dedup keys for one report.
type Keys struct {
	// GridKey is the spatial bucket, "<lat>:<lon>" at 4 decimal places.
	GridKey string
	// TimeBucket is the decimal index of the fixed 600 s bucket containing
	// the report timestamp.
	TimeBucket string
	// GroupLabel is "<gridKey>:<type>:<timeBucket>", persisted as
	// dedup_group_id for diagnostics. Never used for matching.
	GroupLabel string
}

// Derive computes all dedup keys for a report.
func Derive(lat, lon float64, eventType string, ts time.Time) Keys {
	gridKey := GridKey(lat, lon)
	bucket := TimeBucket(ts)
	return Keys{
		GridKey:    gridKey,
		TimeBucket: bucket,
		GroupLabel: GroupLabel(gridKey, eventType, bucket),
	}
}

// GridKey snaps the coordinates to the 4-decimal grid and joins them as
// "<lat>:<lon>". Trailing zeros are not emitted, so 37.5000 renders as
// "37.5"; what matters is that equal roundings yield equal strings.
func GridKey(lat, lon float64) string {
	return roundCoord(lat) + ":" + roundCoord(lon)
}

// roundCoord rounds a coordinate to 4 decimal places and formats it with
// the shortest representation that round-trips.
func roundCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*gridScale)/gridScale, 'f', -1, 64)
}

// TimeBucket returns the fixed-width bucket index for ts as a decimal
// string. The index is floor((ts - anchor) / 600s), so pre-anchor
// timestamps produce negative indexes.
func TimeBucket(ts time.Time) string {
	sec := ts.Unix() - bucketAnchor.Unix()
	idx := sec / int64(TimeWindow/time.Second)
	if sec < 0 && sec%int64(TimeWindow/time.Second) != 0 {
		idx--
	}
	return strconv.FormatInt(idx, 10)
}

// GroupLabel assembles the diagnostic dedup group label.
func GroupLabel(gridKey, eventType, timeBucket string) string {
	return gridKey + ":" + eventType + ":" + timeBucket
}

// WindowStart returns the inclusive lower bound on last_seen_at for a
// report at ts to merge into an existing occurrence.
func WindowStart(ts time.Time) time.Time {
	return ts.Add(-TimeWindow)
}
