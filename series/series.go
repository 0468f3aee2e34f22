// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package series

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// POLICY
// =============================================================================

// Policy selects the task-ordering behavior of a Series.
type Policy int

const (
	// PolicyDefault starts every task immediately and independently.
	PolicyDefault Policy = iota

	// PolicyQueue runs tasks strictly one at a time in submission order.
	PolicyQueue

	// PolicyCancelRunning runs at most one task; a new submission cancels
	// the running one ("latest wins").
	PolicyCancelRunning

	// PolicyCancelTentative runs at most one task; submissions while one
	// is running are dropped ("first wins", anti-double-submit).
	PolicyCancelTentative
)

// String returns the name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case PolicyQueue:
		return "queue"
	case PolicyCancelRunning:
		return "cancelRunning"
	case PolicyCancelTentative:
		return "cancelTentative"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// =============================================================================
// SERIES
// =============================================================================

// Body is the asynchronous logic of one task. It must honor ctx: after
// cancellation it should return promptly, usually with ctx.Err().
type Body func(ctx context.Context) error

// Series is an ordering policy for tasks submitted under one owner.
//
// Submit always accepts: when the Series (or its Scope) is dead, the
// returned handle is already canceled and the body never runs.
// Implementations are safe for concurrent use.
type Series interface {
	// Submit hands a task to the policy and returns its handle.
	Submit(label string, body Body) *Handle

	// Cancel cancels every task currently tracked by the Series and makes
	// it permanently inert. The reason is recorded for diagnostics only.
	Cancel(reason string)

	// Policy returns the ordering policy of the Series.
	Policy() Policy

	// Tracked returns a snapshot of the tasks currently tracked by the
	// Series, in start order.
	Tracked() []TaskInfo

	// String renders the tracked tasks for debug output.
	String() string
}

// TaskInfo is a read-only snapshot of one tracked task.
type TaskInfo struct {
	ID      uuid.UUID
	Label   string
	Started time.Time
	Elapsed time.Duration
}

// =============================================================================
// TASK RECORDS
// =============================================================================

// record is the Series-internal state of one tracked task. Created at
// submission, removed when the task completes, is canceled, or is
// superseded per policy. Owned exclusively by its Series.
type record struct {
	handle *Handle
	body   Body
	start  time.Time

	// onDone, when set by the policy, runs after the task untracked
	// itself and before the handle finishes. Policies use it to release
	// their single-slot bookkeeping so that a caller unblocked by
	// Handle.Done observes the Series ready for the next submission.
	onDone func()
}

// =============================================================================
// SHARED SERIES STATE
// =============================================================================

// base carries the state and behavior shared by all four policies.
type base struct {
	policy Policy
	scope  *Scope

	mu      sync.Mutex
	dead    bool
	reason  string
	tracked []*record // submission/start order
}

func newBase(scope *Scope, policy Policy) base {
	b := base{policy: policy, scope: scope}
	if scope.Context().Err() != nil {
		b.dead = true
		b.reason = "scope canceled"
	}
	return b
}

// Policy returns the ordering policy of the Series.
func (b *base) Policy() Policy {
	return b.policy
}

// accept registers a new record, or returns nil when the Series is dead.
func (b *base) accept(label string, body Body) *record {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dead || b.scope.Context().Err() != nil {
		return nil
	}
	rec := &record{handle: newHandle(label), body: body, start: time.Now()}
	b.tracked = append(b.tracked, rec)
	return rec
}

// remove drops a record from the tracked list.
func (b *base) remove(rec *record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.tracked {
		if r == rec {
			b.tracked = append(b.tracked[:i], b.tracked[i+1:]...)
			return
		}
	}
}

// Cancel cancels every tracked task and marks the Series inert.
func (b *base) Cancel(reason string) {
	b.mu.Lock()
	b.dead = true
	b.reason = reason
	recs := make([]*record, len(b.tracked))
	copy(recs, b.tracked)
	b.mu.Unlock()

	// Cancel outside the lock: a canceled task winds down on its own
	// goroutine and re-enters the Series to untrack itself.
	for _, rec := range recs {
		rec.handle.Cancel()
	}
}

// run executes one task body to completion. This is the only place a
// body is ever invoked. It guarantees, on every exit path, that the
// record is untracked and the handle finished exactly once.
//
// A body canceled before this point runs zero statements: the canceled
// check happens before the body is called.
func (b *base) run(rec *record) {
	err := b.execute(rec)

	b.remove(rec)
	if rec.onDone != nil {
		rec.onDone()
	}
	rec.handle.finish(err)
}

// execute performs the canceled-before-start check and the body call.
func (b *base) execute(rec *record) error {
	if rec.handle.Canceled() {
		return ErrCanceled
	}

	ctx, cancel := context.WithCancel(b.scope.Context())
	rec.handle.bind(cancel)
	defer cancel()

	if ctx.Err() != nil {
		return ErrCanceled
	}

	err := invoke(withHandle(ctx, rec.handle), rec.body)
	if errors.Is(err, context.Canceled) || rec.handle.Canceled() {
		err = ErrCanceled
	}
	return err
}

// invoke calls the body with panic containment. A panicking body fails
// its own task, never the owner. The taskAbort control signal raised by
// the tracked-execution builder lands here and terminates the task as a
// cancellation.
func invoke(ctx context.Context, body Body) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(taskAbort); ok {
				err = ErrCanceled
				return
			}
			err = fmt.Errorf("series: task panic: %v", r)
		}
	}()
	return body(ctx)
}

// =============================================================================
// TASK ABORT SIGNAL
// =============================================================================

// taskAbort cuts the remainder of the current task body. It unwinds to
// the run loop above, which terminates only the task it belongs to.
type taskAbort struct {
	reason string
}

// Abort terminates the calling task: no statement after the call in the
// same task body executes, and the task finishes as canceled. Sibling
// tasks, the Series, and the owner are unaffected.
//
// Must only be called from inside a task body. Calling it elsewhere
// panics all the way up, by construction.
func Abort(reason string) {
	panic(taskAbort{reason: reason})
}

// IsAbort reports whether a recovered panic value is the task-abort
// signal. Used by collaborators that must let the signal pass through
// their own bookkeeping (state.Commit) without mistaking it for a crash.
func IsAbort(r any) bool {
	_, ok := r.(taskAbort)
	return ok
}

// =============================================================================
// DEBUG FORMATTING
// =============================================================================

// stateWord is "queued" for queue series and "running" otherwise; it
// only affects debug output.
func (b *base) stateWord() string {
	if b.policy == PolicyQueue {
		return "queued"
	}
	return "running"
}

// Tracked returns a snapshot of the currently tracked tasks in start
// order.
func (b *base) Tracked() []TaskInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]TaskInfo, 0, len(b.tracked))
	for _, rec := range b.tracked {
		infos = append(infos, TaskInfo{
			ID:      rec.handle.ID(),
			Label:   rec.handle.Label(),
			Started: rec.start,
			Elapsed: time.Since(rec.start),
		})
	}
	return infos
}

// String renders one line per tracked task with its elapsed time.
// Diagnostics only; never parsed.
func (b *base) String() string {
	infos := b.Tracked()
	if len(infos) == 0 {
		return fmt.Sprintf("%s has no %s tasks", b.policy, b.stateWord())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s tasks:", b.policy, b.stateWord())
	for _, info := range infos {
		fmt.Fprintf(&sb, "\n%q - %d ms", info.Label, info.Elapsed.Milliseconds())
	}
	return sb.String()
}
