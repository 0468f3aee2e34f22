// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import "sync"

// =============================================================================
// REACTIVE CELL
// =============================================================================

// Cell is a named value that reports every effective write to its
// Store. A write whose value compares equal to the current one is a
// no-op: no refresh, no commit dirtying.
//
// Optional get/set transforms let a cell normalize on the way in and
// present a derived view on the way out (clamping, trimming, unit
// conversion) without a second storage location.
type Cell[T comparable] struct {
	store *Store
	name  string

	mu    sync.Mutex
	value T

	get func(T) T
	set func(T) T
}

// NewCell creates a cell bound to the store. The name doubles as the
// commit-blocking key for this cell.
func NewCell[T comparable](store *Store, name string, initial T) *Cell[T] {
	return &Cell[T]{store: store, name: name, value: initial}
}

// NewCellWithTransforms creates a cell with get/set transforms. Either
// transform may be nil. The set transform applies before the equality
// check, so a write that normalizes to the stored value stays a no-op.
func NewCellWithTransforms[T comparable](store *Store, name string, initial T, get, set func(T) T) *Cell[T] {
	return &Cell[T]{store: store, name: name, value: initial, get: get, set: set}
}

// Name returns the cell name, which is also its commit-blocking key.
func (c *Cell[T]) Name() string {
	return c.name
}

// Get returns the current value, through the get transform if present.
func (c *Cell[T]) Get() T {
	c.mu.Lock()
	v := c.value
	c.mu.Unlock()

	if c.get != nil {
		return c.get(v)
	}
	return v
}

// Set stores the value, through the set transform if present, and
// dispatches a refresh when the stored value strictly changed.
func (c *Cell[T]) Set(v T) {
	if c.set != nil {
		v = c.set(v)
	}

	c.mu.Lock()
	changed := c.value != v
	c.value = v
	c.mu.Unlock()

	c.store.write(c.name, changed)
}

// Update applies fn to the current stored value and sets the result.
// The read and write are not atomic with respect to other writers; see
// the package note on same-key races.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	v := c.value
	c.mu.Unlock()
	c.Set(fn(v))
}
