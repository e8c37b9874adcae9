// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package broadcast

import (
	json "github.com/goccy/go-json"

	"github.com/kerbwatch/kerbwatch/internal/models"
)

// Message is one event delivered to live subscribers. Kind is "new" when the
// report created a fresh occurrence and "update" when it merged into an
// existing one; Event is the full post-commit snapshot either way.
type Message struct {
	Kind  string            `json:"kind"`
	Event models.Occurrence `json:"event"`
}

// Encode serializes the message to its wire form. Every subscriber of the
// same publish receives a byte-identical payload.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
