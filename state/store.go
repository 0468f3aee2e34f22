// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state provides the reactive state of one owner: value cells
// and status maps that funnel every change through a single refresh
// dispatcher, with commit grouping to coalesce related writes into one
// notification.
//
// Thread safety: all types are mutex-guarded and safe for concurrent
// use by tasks of the same owner. Two tasks racing to write the same
// cell or status key are not serialized beyond last-write-wins; that is
// a caller error, not a supported pattern.
package state

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/uiflow/series"
)

// =============================================================================
// STORE / REFRESH DISPATCHER
// =============================================================================

// observer is one registered refresh callback.
type observer struct {
	id uuid.UUID
	fn func()
}

// commitFrame tracks one active Commit: the keys it blocks and whether
// any blocked write actually changed a value.
type commitFrame struct {
	keys  map[any]struct{}
	dirty bool
}

// Store owns the refresh dispatcher of one owner. Cells and status maps
// report their writes here; the Store decides whether a refresh is
// dispatched now, deferred to the end of a commit, or dropped because
// nothing changed.
type Store struct {
	mu        sync.Mutex
	observers []observer
	notifying bool
	commits   []*commitFrame
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// AddRefreshObserver registers a callback invoked (with no arguments) on
// every coalesced change, and returns the id to unregister it with.
// Registering the same function twice is allowed; it will run twice per
// refresh under two distinct ids.
func (st *Store) AddRefreshObserver(fn func()) uuid.UUID {
	st.mu.Lock()
	defer st.mu.Unlock()
	id := uuid.New()
	st.observers = append(st.observers, observer{id: id, fn: fn})
	return id
}

// RemoveRefreshObserver unregisters the callback with the given id. A
// removal during a refresh pass takes effect after the pass finishes.
func (st *Store) RemoveRefreshObserver(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, o := range st.observers {
		if o.id == id {
			st.observers = append(st.observers[:i], st.observers[i+1:]...)
			return
		}
	}
}

// Refresh invokes every registered observer once. Reentrancy-guarded: a
// Refresh issued while a pass is running is absorbed, because the
// running pass already covers the logical batch. Observers are invoked
// from a snapshot, so registrations and removals made mid-pass apply to
// the next pass.
func (st *Store) Refresh() {
	st.mu.Lock()
	if st.notifying {
		st.mu.Unlock()
		return
	}
	st.notifying = true
	snapshot := make([]observer, len(st.observers))
	copy(snapshot, st.observers)
	st.mu.Unlock()

	for _, o := range snapshot {
		o.fn()
	}

	st.mu.Lock()
	st.notifying = false
	st.mu.Unlock()
}

// =============================================================================
// COMMIT GROUPING
// =============================================================================

// Commit suppresses refresh dispatch for writes to the listed keys while
// block runs, then issues exactly one refresh — and only if at least one
// blocked write changed a value. Keys may mix cell names and status-map
// keys, so a multi-field, multi-status transition still costs a single
// notification.
//
// The task-abort control signal raised inside block (see series.Abort)
// is swallowed: the commit bookkeeping completes and the coalesced
// refresh is still issued for what did change. Any other panic
// propagates unchanged.
func (st *Store) Commit(block func(), keys ...any) {
	frame := &commitFrame{keys: make(map[any]struct{}, len(keys))}
	for _, k := range keys {
		frame.keys[k] = struct{}{}
	}

	st.mu.Lock()
	st.commits = append(st.commits, frame)
	st.mu.Unlock()

	defer func() {
		st.mu.Lock()
		for i, f := range st.commits {
			if f == frame {
				st.commits = append(st.commits[:i], st.commits[i+1:]...)
				break
			}
		}
		dirty := frame.dirty
		st.mu.Unlock()

		if dirty {
			st.Refresh()
		}

		if r := recover(); r != nil && !series.IsAbort(r) {
			panic(r)
		}
	}()

	block()
}

// write is the single entry point for cells and status maps. changed
// reports whether the value strictly changed under equality; unchanged
// writes never dispatch. A write to a blocked key is deferred to the
// owning commit instead of dispatching now.
func (st *Store) write(key any, changed bool) {
	if !changed {
		return
	}

	st.mu.Lock()
	blocked := false
	for _, frame := range st.commits {
		if _, ok := frame.keys[key]; ok {
			frame.dirty = true
			blocked = true
		}
	}
	st.mu.Unlock()

	if !blocked {
		st.Refresh()
	}
}

// =============================================================================
// AWAITING A REFRESH
// =============================================================================

// AwaitNextRefresh blocks until count refresh notifications have
// occurred after registration, or ctx is canceled. onRegistered, when
// non-nil, runs synchronously right after the internal observer is
// registered and before blocking, so the caller can trigger the awaited
// mutation without racing the registration.
//
// A canceled wait never resumes: once ctx is done the observer is
// removed and later refreshes are invisible to this call.
func (st *Store) AwaitNextRefresh(ctx context.Context, count int, onRegistered func()) error {
	if count < 1 {
		count = 1
	}

	var (
		mu        sync.Mutex
		remaining = count
		fired     = make(chan struct{})
	)
	id := st.AddRefreshObserver(func() {
		mu.Lock()
		defer mu.Unlock()
		remaining--
		if remaining == 0 {
			close(fired)
		}
	})
	defer st.RemoveRefreshObserver(id)

	if onRegistered != nil {
		onRegistered()
	}

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
