// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package services

import (
	"context"
)

// ContextHub matches *broadcast.Hub's RunWithContext method without
// importing the broadcast package.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// BroadcastHubService wraps the fan-out hub as a supervised service. The
// hub's RunWithContext already follows the suture.Service pattern, so this
// wrapper only delegates and supplies a name for logging.
type BroadcastHubService struct {
	hub  ContextHub
	name string
}

// NewBroadcastHubService creates a new hub service wrapper.
func NewBroadcastHubService(hub ContextHub) *BroadcastHubService {
	return &BroadcastHubService{
		hub:  hub,
		name: "broadcast-hub",
	}
}

// Serve implements suture.Service. Returns ctx.Err() on normal shutdown
// after the hub has closed every subscriber channel.
func (s *BroadcastHubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer; suture uses it to name the service in logs.
func (s *BroadcastHubService) String() string {
	return s.name
}
