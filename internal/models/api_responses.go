// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package models

import (
	"time"
)

// APIResponse is the standardized response wrapper used by all HTTP
// endpoints, for both success and error outcomes.
//
// Example successful response:
//
//	{
//	  "status": "success",
//	  "data": {"kind": "update", "event": {...}},
//	  "metadata": {"timestamp": "2026-08-31T12:00:00Z", "query_time_ms": 3}
//	}
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {"code": "VALIDATION_ERROR", "message": "invalid timestamp"},
//	  "metadata": {"timestamp": "2026-08-31T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries structured error details with a stable machine-readable
// code alongside the human-readable message.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
