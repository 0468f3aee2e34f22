// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"sync"

	"github.com/jeranaias/uiflow/status"
)

// =============================================================================
// STATUS MAP
// =============================================================================

// StatusMap tracks a status.Status per caller-defined key. A key that
// was never written reads as NotStarted. Writes follow the same
// coalescing contract as cells: an effective change dispatches a
// refresh unless the key is blocked by an active commit, and writing
// the value already stored is a no-op.
//
// Keys are used directly as commit-blocking keys, so one Commit may mix
// cell names and status keys in its blocked set.
type StatusMap[K comparable] struct {
	store *Store

	mu sync.Mutex
	m  map[K]status.Status
}

// NewStatusMap creates an empty status map bound to the store.
func NewStatusMap[K comparable](store *Store) *StatusMap[K] {
	return &StatusMap[K]{store: store, m: make(map[K]status.Status)}
}

// Get returns the status for key, or NotStarted when the key was never
// written.
func (sm *StatusMap[K]) Get(key K) status.Status {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if s, ok := sm.m[key]; ok {
		return s
	}
	return status.Idle()
}

// Set stores the status for key and dispatches per the coalescing
// contract.
func (sm *StatusMap[K]) Set(key K, s status.Status) {
	sm.mu.Lock()
	old, ok := sm.m[key]
	if !ok {
		old = status.Idle()
	}
	changed := old != s
	sm.m[key] = s
	sm.mu.Unlock()

	sm.store.write(key, changed)
}

// Reset removes the key, returning its reading to NotStarted. Counts as
// a change when the stored status was anything else.
func (sm *StatusMap[K]) Reset(key K) {
	sm.mu.Lock()
	old, ok := sm.m[key]
	delete(sm.m, key)
	sm.mu.Unlock()

	sm.store.write(key, ok && old != status.Idle())
}

// Snapshot returns a copy of every key with a stored status. For
// inspection and rendering; mutating the returned map has no effect.
func (sm *StatusMap[K]) Snapshot() map[K]status.Status {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := make(map[K]status.Status, len(sm.m))
	for k, s := range sm.m {
		out[k] = s
	}
	return out
}
