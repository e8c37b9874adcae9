// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kerbwatch/kerbwatch/internal/logging"
	"github.com/kerbwatch/kerbwatch/internal/metrics"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pongWait is how long we wait for a pong before dropping the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// StreamEvents handles GET /api/v1/stream: a Server-Sent Events feed of
// committed occurrence events. Each event is one "data:" frame carrying the
// {kind, event} JSON. The stream starts at subscription time; nothing is
// replayed.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Response writer does not support streaming", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable proxy buffering so frames reach the client immediately.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.hub.Subscribe()
	defer h.hub.Unsubscribe(sub)

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	logging.Debug().Str("remote_addr", r.RemoteAddr).Msg("SSE stream opened")

	for {
		select {
		case <-r.Context().Done():
			logging.Debug().Str("remote_addr", r.RemoteAddr).Msg("SSE stream closed by client")
			return
		case msg, ok := <-sub.C:
			if !ok {
				// Hub shut down.
				return
			}
			payload, err := msg.Encode()
			if err != nil {
				logging.Error().Err(err).Msg("Failed to encode SSE event")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				logging.Debug().Err(err).Msg("SSE write failed, closing stream")
				return
			}
			flusher.Flush()
		}
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin policy is enforced by CORS on the rest of the API; the
	// WebSocket feed is read-only so cross-origin reads are acceptable.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// WebSocket handles GET /api/v1/ws: the same event feed as StreamEvents over
// a WebSocket connection, one text message per event.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	sub := h.hub.Subscribe()

	metrics.WSConnectionsActive.Inc()
	logging.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket connected")

	done := make(chan struct{})

	// Read pump: discard inbound frames, react to close and pong.
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Write pump.
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.hub.Unsubscribe(sub)
		_ = conn.Close()
		metrics.WSConnectionsActive.Dec()
		logging.Debug().Str("remote_addr", r.RemoteAddr).Msg("WebSocket disconnected")
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case msg, ok := <-sub.C:
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			payload, err := msg.Encode()
			if err != nil {
				logging.Error().Err(err).Msg("Failed to encode WebSocket event")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
