// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Ingest pipeline throughput and outcomes
// - Database query performance (DuckDB)
// - Broadcast hub fan-out and drops
// - API endpoint latency and throughput
// - WebSocket/SSE connections

var (
	// Ingest Pipeline Metrics
	IngestReportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_reports_total",
			Help: "Total number of detection reports processed, by outcome",
		},
		[]string{"result"}, // "new", "update", "error"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "End-to-end duration of report ingestion in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_retries_total",
			Help: "Total number of ingest re-resolutions after a lost update race",
		},
	)

	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation"},
	)

	// Broadcast Hub Metrics
	BroadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_subscribers",
			Help: "Current number of live event subscribers",
		},
	)

	BroadcastPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_published_total",
			Help: "Total number of events published to the broadcast hub",
		},
	)

	BroadcastDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Total number of events dropped because a subscriber buffer was full",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// Streaming Connection Metrics
	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Current number of active WebSocket connections",
		},
	)

	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Current number of active SSE connections",
		},
	)
)

// ObserveDBQuery records the elapsed time of a database operation. Call with
// defer and the operation start time.
func ObserveDBQuery(operation string, start time.Time) {
	DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(endpoint, method string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}
