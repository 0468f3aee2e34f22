// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package series coordinates asynchronous tasks submitted by one owner.
//
// An owner (typically a view-model) holds a Scope: a cancellable lifetime
// that every Series created by that owner attaches to. A Series accepts
// tasks via Submit and decides when (or whether) each task body runs
// according to its ordering policy:
//
//   - PolicyDefault: every task starts immediately and runs independently
//   - PolicyQueue: strict FIFO, one task at a time
//   - PolicyCancelRunning: latest wins; a new submission cancels the
//     running task before its own body starts
//   - PolicyCancelTentative: first wins; submissions while a task is
//     running are dropped with a pre-canceled handle
//
// Cancellation propagates strictly downward: canceling the Scope cancels
// every Series and every in-flight task; canceling one Series or one task
// never affects the owner or sibling Series. Cancellation is cooperative:
// a body observes it through its context. A task canceled before its
// policy-defined start point never has its body invoked.
//
// # Usage
//
// Create a scope and submit work:
//
//	scope := series.NewScope(context.Background())
//	defer scope.Cancel("owner closed")
//
//	s := scope.New(series.PolicyQueue)
//	h := s.Submit("load profile", func(ctx context.Context) error {
//	    return loadProfile(ctx)
//	})
//	<-h.Done()
package series
