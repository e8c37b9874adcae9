// Kerbwatch - Street Hazard Detection Deduplication and Live Fan-Out
// Copyright 2026 Kerbwatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kerbwatch/kerbwatch

package ingest

import "sync"

// keyLock serializes ingestion per (gridKey, type) pair so two concurrent
// reports for the same cell cannot both miss the candidate lookup and
// create duplicate occurrences. Locks are never removed; the key space is
// bounded by the active grid cells, which stay small in practice.
type keyLock struct {
	locks sync.Map // string -> *sync.Mutex
}

// lock acquires the mutex for the pair and returns its unlock function.
func (kl *keyLock) lock(gridKey, eventType string) func() {
	key := gridKey + "|" + eventType
	v, _ := kl.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
