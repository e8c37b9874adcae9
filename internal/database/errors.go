// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package database

import "errors"

var (
	// ErrNotFound is returned when a lookup or targeted update matches no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateID is returned when an insert collides with an existing
	// primary key.
	ErrDuplicateID = errors.New("duplicate occurrence id")
)
