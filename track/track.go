// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package track wraps task logic in status bookkeeping: it writes
// Loading into a status map before the work, maps the outcome to
// Success or Issue afterwards, and can cut the remainder of the
// enclosing task when the outcome is an Issue.
//
// Failures surface to the UI exclusively as status values; nothing in
// this package rethrows a domain error past the builder boundary.
// Cooperative cancellation is the one exception: it is a control
// signal, never converted into an Issue, and it leaves the previously
// stored status untouched.
package track

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/uiflow/series"
	"github.com/jeranaias/uiflow/state"
	"github.com/jeranaias/uiflow/status"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// IssueError is an expected, caller-raised failure carrying user-facing
// detail. Return one from a body (or use Fail/Failf) to short-circuit
// into a specific Issue status.
type IssueError struct {
	Message string
	Code    int
}

// Error implements the error interface.
func (e *IssueError) Error() string {
	return fmt.Sprintf("issue %d: %s", e.Code, e.Message)
}

// Fail returns an IssueError with the given message and code.
func Fail(message string, code int) error {
	return &IssueError{Message: message, Code: code}
}

// Failf returns an IssueError with a formatted message.
func Failf(code int, format string, args ...any) error {
	return &IssueError{Message: fmt.Sprintf(format, args...), Code: code}
}

// ResultMapper converts a body outcome into the status written to the
// map. err is nil on the success path; cancellation never reaches the
// mapper. Owners override the default to map domain errors to specific
// Issue codes.
type ResultMapper func(err error) status.Status

// defaultMapper: success to Success, IssueError to its Issue, anything
// else to a generic Issue carrying the error text.
func defaultMapper(err error) status.Status {
	if err == nil {
		return status.Done()
	}
	var issue *IssueError
	if errors.As(err, &issue) {
		return status.Failed(issue.Message, issue.Code)
	}
	return status.Failed(err.Error(), status.UnknownCode)
}

// =============================================================================
// TRACKER
// =============================================================================

// Tracker runs bodies with status tracking against one status map.
type Tracker[K comparable] struct {
	statuses  *state.StatusMap[K]
	mapResult ResultMapper
}

// New creates a Tracker with the default result mapper.
func New[K comparable](statuses *state.StatusMap[K]) *Tracker[K] {
	return NewWithMapper(statuses, nil)
}

// NewWithMapper creates a Tracker with an owner-supplied result mapper.
// A nil mapper falls back to the default.
func NewWithMapper[K comparable](statuses *state.StatusMap[K], mapper ResultMapper) *Tracker[K] {
	if mapper == nil {
		mapper = defaultMapper
	}
	return &Tracker[K]{statuses: statuses, mapResult: mapper}
}

// Statuses returns the status map the tracker writes to.
func (t *Tracker[K]) Statuses() *state.StatusMap[K] {
	return t.statuses
}

// Options control one tracked run.
type Options struct {
	// SkipLoading suppresses the initial Loading write.
	SkipLoading bool

	// NoPropagation keeps an Issue outcome from aborting the enclosing
	// task.
	NoPropagation bool
}

// =============================================================================
// TRACKED EXECUTION
// =============================================================================

// Run executes body with full tracking: Loading is written first, the
// outcome is written afterwards, and an Issue outcome aborts the
// remainder of the enclosing task (statements after the Run call in the
// same task body never execute; sibling tasks and Series are
// unaffected). This is the variant for steps inside a coordinated task,
// where later steps depend on earlier ones.
func (t *Tracker[K]) Run(ctx context.Context, key K, body series.Body) status.Status {
	return t.RunWith(ctx, key, Options{}, body)
}

// RunIsolated executes body with tracking but never aborts the
// enclosing task, whatever the outcome. Use it for independent,
// order-insensitive steps such as parallel validations.
func (t *Tracker[K]) RunIsolated(ctx context.Context, key K, body series.Body) status.Status {
	return t.RunWith(ctx, key, Options{NoPropagation: true}, body)
}

// RunWith executes body under explicit options.
//
// Behavior, in order:
//  1. If ctx is already canceled, the stored status is returned
//     unchanged and the body never runs.
//  2. Unless opts.SkipLoading, Loading is written (one refresh).
//  3. The body runs. A cancellation outcome skips the result write,
//     leaving the stored status (typically that Loading) visible.
//  4. Any other outcome is mapped by the result mapper and written.
//  5. An Issue outcome aborts the enclosing task unless
//     opts.NoPropagation — only when ctx actually belongs to a task;
//     outside a task the Issue is returned without aborting anything.
func (t *Tracker[K]) RunWith(ctx context.Context, key K, opts Options, body series.Body) status.Status {
	if ctx.Err() != nil {
		return t.statuses.Get(key)
	}

	if !opts.SkipLoading {
		t.statuses.Set(key, status.InProgress())
	}

	err := body(ctx)
	if isCancellation(ctx, err) {
		return t.statuses.Get(key)
	}

	result := t.mapResult(err)
	t.statuses.Set(key, result)

	if result.IsIssue() && !opts.NoPropagation {
		if h := series.HandleFromContext(ctx); h != nil {
			h.Cancel()
			series.Abort(result.Message())
		}
	}
	return result
}

// Probe executes body and returns the mapped status without touching
// the map and without aborting anything. For probe-style calls that
// have no persisted key.
func (t *Tracker[K]) Probe(ctx context.Context, body series.Body) status.Status {
	if ctx.Err() != nil {
		return status.Idle()
	}

	err := body(ctx)
	if isCancellation(ctx, err) {
		return status.Idle()
	}
	return t.mapResult(err)
}

// isCancellation reports whether the outcome is a cooperative
// cancellation signal rather than a failure. A body that returns nil
// after its context was canceled counts as canceled too: a task cut
// short must not move a status key.
func isCancellation(ctx context.Context, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, series.ErrCanceled) {
		return true
	}
	return err == nil && ctx.Err() != nil
}
