// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

// Package broadcast implements the in-process fan-out hub that delivers
// committed occurrence events to live subscribers (SSE and WebSocket
// connections).
//
// Delivery is best-effort: each subscriber owns a bounded buffer, a publish
// never blocks, and an event that finds a subscriber's buffer full is
// dropped for that subscriber only. There is no replay; a subscriber sees
// only events published after it subscribed.
package broadcast

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kerbwatch/kerbwatch/internal/logging"
	"github.com/kerbwatch/kerbwatch/internal/metrics"
)

// DefaultBufferSize is the per-subscriber channel capacity used when the
// configured value is not positive.
const DefaultBufferSize = 64

// Subscription is one live subscriber's handle. Receive from C; the channel
// is closed by Unsubscribe or hub shutdown, never by the subscriber.
type Subscription struct {
	id uint64
	C  <-chan Message
	ch chan Message
}

// Hub fans committed events out to all current subscribers.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	buffer int
	nextID atomic.Uint64
	closed bool
}

// NewHub creates a hub with the given per-subscriber buffer size.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: bufferSize,
	}
}

// Subscribe registers a new subscriber and returns its handle. The
// subscriber starts receiving events published after this call returns;
// nothing earlier is replayed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Message, h.buffer)
	sub := &Subscription{
		id: h.nextID.Add(1),
		C:  ch,
		ch: ch,
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return sub
	}
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(float64(count))
	logging.Debug().Uint64("subscriber_id", sub.id).Int("subscribers", count).Msg("Subscriber registered")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. The close happens
// before Unsubscribe returns, so no publish after this call can reach the
// subscriber. Unsubscribing twice, or after shutdown, is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, present := h.subs[sub.id]
	if present {
		delete(h.subs, sub.id)
		close(sub.ch)
	}
	count := len(h.subs)
	h.mu.Unlock()

	if present {
		metrics.BroadcastSubscribers.Set(float64(count))
		logging.Debug().Uint64("subscriber_id", sub.id).Int("subscribers", count).Msg("Subscriber removed")
	}
}

// Publish delivers msg to every current subscriber. Delivery order across
// subscribers is by ascending subscriber id, so repeated publishes favor no
// one arbitrarily. A full subscriber buffer drops the message for that
// subscriber only; Publish never blocks.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	metrics.BroadcastPublishedTotal.Inc()

	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		sub := h.subs[id]
		select {
		case sub.ch <- msg:
		default:
			metrics.BroadcastDroppedTotal.Inc()
			logging.Warn().
				Uint64("subscriber_id", id).
				Str("kind", msg.Kind).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// RunWithContext blocks until ctx is canceled, then shuts the hub down:
// all subscriber channels are closed and later publishes become no-ops.
// This is the entry point the supervisor tree runs the hub under.
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.mu.Unlock()

	metrics.BroadcastSubscribers.Set(0)
	logging.Info().Msg("Broadcast hub stopped")
	return ctx.Err()
}
