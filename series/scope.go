// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package series

import (
	"context"
	"sync"
)

// =============================================================================
// OWNER SCOPE
// =============================================================================

// Scope is the cancellable lifetime of one owner. Every Series created
// through the Scope is a child: canceling the Scope cancels every Series
// and every in-flight task transitively. The reverse never holds — a
// canceled Series or task leaves the Scope and its siblings untouched.
//
// The Scope keeps its children in an explicit list and walks it on
// cancellation, rather than relying on context propagation alone, so
// that Series bookkeeping (dead flags, tracked records) is settled
// deterministically.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	children []Series
	def      Series
}

// NewScope creates a Scope under the given parent context. Canceling the
// parent cancels the Scope as well.
func NewScope(parent context.Context) *Scope {
	ctx, cancel := context.WithCancel(parent)
	sc := &Scope{ctx: ctx, cancel: cancel}
	sc.def = sc.New(PolicyDefault)
	return sc
}

// Context returns the context of the Scope. Every task context derives
// from it.
func (sc *Scope) Context() context.Context {
	return sc.ctx
}

// Done returns a channel closed when the Scope is canceled.
func (sc *Scope) Done() <-chan struct{} {
	return sc.ctx.Done()
}

// Default returns the default Series of the Scope (PolicyDefault).
func (sc *Scope) Default() Series {
	return sc.def
}

// New creates a Series with the given policy, attached to the Scope. A
// Series created after the Scope was canceled is born inert: it accepts
// submissions but hands back pre-canceled handles.
func (sc *Scope) New(policy Policy) Series {
	var s Series
	switch policy {
	case PolicyQueue:
		s = &queueSeries{base: newBase(sc, policy)}
	case PolicyCancelRunning:
		s = &latestWinsSeries{base: newBase(sc, policy)}
	case PolicyCancelTentative:
		s = &firstWinsSeries{base: newBase(sc, policy)}
	default:
		s = &defaultSeries{base: newBase(sc, policy)}
	}

	sc.mu.Lock()
	sc.children = append(sc.children, s)
	sc.mu.Unlock()
	return s
}

// Cancel cancels every child Series (and through them every in-flight
// task), then the Scope context itself. Safe to call more than once.
func (sc *Scope) Cancel(reason string) {
	sc.mu.Lock()
	children := make([]Series, len(sc.children))
	copy(children, sc.children)
	sc.mu.Unlock()

	for _, child := range children {
		child.Cancel(reason)
	}
	sc.cancel()
}
