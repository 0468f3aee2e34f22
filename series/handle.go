// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package series

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrCanceled is the terminal error of a task that was canceled before or
// during execution, whether by its handle, its Series, or its owner Scope.
var ErrCanceled = errors.New("series: task canceled")

// =============================================================================
// HANDLE
// =============================================================================

// Handle is the caller-visible token for one submitted task. It can cancel
// the task and report its completion.
//
// A Handle must be used as a pointer; it contains a mutex and is shared
// between the submitting caller and the Series that runs the task.
type Handle struct {
	id    uuid.UUID
	label string

	mu       sync.Mutex
	canceled bool
	cancel   context.CancelFunc // bound when the task context is created

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// newHandle creates a live handle for an accepted task.
func newHandle(label string) *Handle {
	return &Handle{
		id:    uuid.New(),
		label: label,
		done:  make(chan struct{}),
	}
}

// newCanceledHandle creates a handle that is already terminally canceled.
// Returned when a Series is dead or a policy drops the submission.
func newCanceledHandle(label string) *Handle {
	h := newHandle(label)
	h.canceled = true
	h.finish(ErrCanceled)
	return h
}

// ID returns the unique id of the task.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Label returns the label the task was submitted with.
func (h *Handle) Label() string {
	return h.label
}

// Cancel requests cooperative cancellation of the task. Safe to call at
// any point and any number of times. If the task has not started under
// its policy yet, the body will never be invoked.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.canceled = true
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// Canceled reports whether cancellation has been requested.
func (h *Handle) Canceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}

// Done returns a channel that closes when the task reaches a terminal
// state: completed, failed, canceled, or skipped by its policy.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error of the task: nil on success, ErrCanceled
// on any cancellation path, or the error returned by the body. Only
// meaningful after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// bind stores the cancel function of the task context. If cancellation
// was requested before the task context existed, the context is canceled
// immediately so the race resolves in favor of the cancel.
func (h *Handle) bind(cancel context.CancelFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.canceled {
		cancel()
		return
	}
	h.cancel = cancel
}

// finish records the terminal error and closes Done. Runs at most once;
// later calls are no-ops, so every exit path of the runner can call it.
func (h *Handle) finish(err error) {
	h.doneOnce.Do(func() {
		h.mu.Lock()
		h.err = err
		h.cancel = nil
		h.mu.Unlock()
		close(h.done)
	})
}

// =============================================================================
// CONTEXT PLUMBING
// =============================================================================

type handleCtxKey struct{}

// withHandle attaches the task handle to the task context so that code
// running inside the body (notably the track package) can address the
// enclosing task.
func withHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleCtxKey{}, h)
}

// HandleFromContext returns the Handle of the task the context belongs
// to, or nil when the context is not a task context.
func HandleFromContext(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleCtxKey{}).(*Handle)
	return h
}
