// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package series

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// sideEffects records the labels of bodies that actually ran.
type sideEffects struct {
	mu  sync.Mutex
	log []string
}

func (se *sideEffects) append(label string) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.log = append(se.log, label)
}

func (se *sideEffects) snapshot() []string {
	se.mu.Lock()
	defer se.mu.Unlock()
	return append([]string{}, se.log...)
}

func newScope(t *testing.T) *Scope {
	t.Helper()
	sc := NewScope(context.Background())
	t.Cleanup(func() { sc.Cancel("test done") })
	return sc
}

// waitDone fails the test if the handle does not finish in time.
func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("task %q did not finish", h.Label())
	}
}

// =============================================================================
// DEFAULT POLICY
// =============================================================================

func TestDefaultRunsTasksIndependently(t *testing.T) {
	sc := newScope(t)
	s := sc.Default()
	se := &sideEffects{}

	release := make(chan struct{})
	body := func(label string) Body {
		return func(ctx context.Context) error {
			select {
			case <-release:
				se.append(label)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	h1 := s.Submit("one", body("one"))
	h2 := s.Submit("two", body("two"))
	h3 := s.Submit("three", body("three"))

	// Cancel the middle task; the siblings must be unaffected.
	h2.Cancel()
	waitDone(t, h2)
	close(release)
	waitDone(t, h1)
	waitDone(t, h3)

	if h1.Err() != nil || h3.Err() != nil {
		t.Errorf("siblings should succeed, got %v / %v", h1.Err(), h3.Err())
	}
	if !errors.Is(h2.Err(), ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got %v", h2.Err())
	}

	log := se.snapshot()
	if len(log) != 2 {
		t.Errorf("Expected 2 side effects, got %v", log)
	}
}

func TestDeadSeriesReturnsPreCanceledHandle(t *testing.T) {
	sc := NewScope(context.Background())
	sc.Cancel("owner gone")

	se := &sideEffects{}
	s := sc.New(PolicyDefault)
	h := s.Submit("late", func(ctx context.Context) error {
		se.append("late")
		return nil
	})

	waitDone(t, h)
	if !h.Canceled() || !errors.Is(h.Err(), ErrCanceled) {
		t.Error("submit on a dead series should hand back a pre-canceled handle")
	}
	if len(se.snapshot()) != 0 {
		t.Error("body must never run on a dead series")
	}
}

// =============================================================================
// QUEUE POLICY
// =============================================================================

func TestQueuePreservesSubmissionOrder(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyQueue)
	se := &sideEffects{}

	labels := []string{"a", "b", "c", "d", "e"}
	handles := make([]*Handle, 0, len(labels))
	for _, label := range labels {
		label := label
		handles = append(handles, s.Submit(label, func(ctx context.Context) error {
			se.append(label)
			return nil
		}))
	}
	for _, h := range handles {
		waitDone(t, h)
	}

	log := se.snapshot()
	if len(log) != len(labels) {
		t.Fatalf("Expected %d side effects, got %v", len(labels), log)
	}
	for i, label := range labels {
		if log[i] != label {
			t.Errorf("position %d: expected %q, got %q", i, label, log[i])
		}
	}
}

func TestQueueSkipsTaskCanceledWhileWaiting(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyQueue)
	se := &sideEffects{}

	started := make(chan struct{})
	release := make(chan struct{})
	head := s.Submit("head", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	waiting := s.Submit("waiting", func(ctx context.Context) error {
		se.append("waiting")
		return nil
	})
	last := s.Submit("last", func(ctx context.Context) error {
		se.append("last")
		return nil
	})

	<-started
	waiting.Cancel()
	close(release)

	waitDone(t, head)
	waitDone(t, waiting)
	waitDone(t, last)

	if !errors.Is(waiting.Err(), ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got %v", waiting.Err())
	}
	log := se.snapshot()
	if len(log) != 1 || log[0] != "last" {
		t.Errorf("Expected only %q to run, got %v", "last", log)
	}
}

// The concrete ordering scenario: cancel "A" shortly after submission
// while it is mid-run; "B" then "C" still run, in order, and "A" leaves
// no side effect.
func TestQueueCanceledHeadStillRunsRest(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyQueue)
	se := &sideEffects{}

	task := func(label string, d time.Duration) Body {
		return func(ctx context.Context) error {
			select {
			case <-time.After(d):
				se.append(label)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	ha := s.Submit("A", task("A", 200*time.Millisecond))
	hb := s.Submit("B", task("B", 20*time.Millisecond))
	hc := s.Submit("C", task("C", 20*time.Millisecond))

	time.Sleep(20 * time.Millisecond)
	ha.Cancel()

	waitDone(t, ha)
	waitDone(t, hb)
	waitDone(t, hc)

	log := se.snapshot()
	if len(log) != 2 || log[0] != "B" || log[1] != "C" {
		t.Errorf("Expected [B C], got %v", log)
	}
}

func TestQueueCancelDrainsEverything(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyQueue)
	se := &sideEffects{}

	started := make(chan struct{})
	running := s.Submit("running", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	queued := s.Submit("queued", func(ctx context.Context) error {
		se.append("queued")
		return nil
	})

	<-started
	s.Cancel("shutting down")

	waitDone(t, running)
	waitDone(t, queued)

	if !errors.Is(running.Err(), ErrCanceled) || !errors.Is(queued.Err(), ErrCanceled) {
		t.Errorf("both tasks should be canceled, got %v / %v", running.Err(), queued.Err())
	}
	if len(se.snapshot()) != 0 {
		t.Error("queued body must not run after series cancel")
	}

	// The series is now inert.
	late := s.Submit("late", func(ctx context.Context) error { return nil })
	waitDone(t, late)
	if !errors.Is(late.Err(), ErrCanceled) {
		t.Error("submit after series cancel should be pre-canceled")
	}
}

// =============================================================================
// CANCEL-RUNNING POLICY
// =============================================================================

func TestCancelRunningLatestWins(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyCancelRunning)
	se := &sideEffects{}

	var active atomic.Int32
	aStarted := make(chan struct{})
	ha := s.Submit("a", func(ctx context.Context) error {
		active.Add(1)
		defer active.Add(-1)
		close(aStarted)
		<-ctx.Done()
		return ctx.Err()
	})
	<-aStarted

	hb := s.Submit("b", func(ctx context.Context) error {
		if n := active.Add(1); n != 1 {
			t.Errorf("two bodies mid-execution: %d", n)
		}
		defer active.Add(-1)
		se.append("b")
		return nil
	})

	waitDone(t, ha)
	waitDone(t, hb)

	if !errors.Is(ha.Err(), ErrCanceled) {
		t.Errorf("a should be canceled by b, got %v", ha.Err())
	}
	if hb.Err() != nil {
		t.Errorf("b should succeed, got %v", hb.Err())
	}
	if log := se.snapshot(); len(log) != 1 || log[0] != "b" {
		t.Errorf("Expected [b], got %v", log)
	}
}

func TestCancelRunningSupersededBeforeStartNeverRuns(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyCancelRunning)
	se := &sideEffects{}

	aStarted := make(chan struct{})
	release := make(chan struct{})
	ha := s.Submit("a", func(ctx context.Context) error {
		close(aStarted)
		<-release
		return nil
	})
	<-aStarted

	// b is waiting for a to wind down; cancel it before that happens.
	hb := s.Submit("b", func(ctx context.Context) error {
		se.append("b")
		return nil
	})
	hb.Cancel()
	close(release)

	waitDone(t, ha)
	waitDone(t, hb)

	if !errors.Is(hb.Err(), ErrCanceled) {
		t.Errorf("Expected ErrCanceled, got %v", hb.Err())
	}
	if len(se.snapshot()) != 0 {
		t.Error("b was canceled before its start point; body must not run")
	}
}

// =============================================================================
// CANCEL-TENTATIVE POLICY
// =============================================================================

func TestCancelTentativeFirstWins(t *testing.T) {
	sc := newScope(t)
	s := sc.New(PolicyCancelTentative)
	se := &sideEffects{}

	started := make(chan struct{})
	release := make(chan struct{})
	ha := s.Submit("a", func(ctx context.Context) error {
		close(started)
		<-release
		se.append("a")
		return nil
	})
	<-started

	// Double-submit while a runs: dropped outright.
	hb := s.Submit("b", func(ctx context.Context) error {
		se.append("b")
		return nil
	})
	select {
	case <-hb.Done():
	default:
		t.Fatal("dropped submission should come back already finished")
	}
	if !hb.Canceled() || !errors.Is(hb.Err(), ErrCanceled) {
		t.Error("dropped submission should be pre-canceled")
	}

	close(release)
	waitDone(t, ha)

	// After a finished, the next submission runs normally.
	hc := s.Submit("c", func(ctx context.Context) error {
		se.append("c")
		return nil
	})
	waitDone(t, hc)

	log := se.snapshot()
	if len(log) != 2 || log[0] != "a" || log[1] != "c" {
		t.Errorf("Expected [a c], got %v", log)
	}
}

// =============================================================================
// OWNER SCOPE
// =============================================================================

func TestScopeCancelIsTransitive(t *testing.T) {
	sc := NewScope(context.Background())
	q := sc.New(PolicyQueue)
	d := sc.Default()

	var started sync.WaitGroup
	started.Add(2)
	blocking := func(ctx context.Context) error {
		started.Done()
		<-ctx.Done()
		return ctx.Err()
	}
	h1 := q.Submit("queued-running", blocking)
	h2 := d.Submit("default-running", blocking)
	started.Wait()

	sc.Cancel("owner closed")

	waitDone(t, h1)
	waitDone(t, h2)
	if !errors.Is(h1.Err(), ErrCanceled) || !errors.Is(h2.Err(), ErrCanceled) {
		t.Errorf("owner cancel should cancel all in-flight tasks, got %v / %v", h1.Err(), h2.Err())
	}

	select {
	case <-sc.Done():
	default:
		t.Error("scope context should be canceled")
	}
}

func TestCancelingOneSeriesSparesSiblings(t *testing.T) {
	sc := newScope(t)
	a := sc.New(PolicyDefault)
	b := sc.New(PolicyDefault)

	release := make(chan struct{})
	ha := a.Submit("doomed", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	hb := b.Submit("survivor", func(ctx context.Context) error {
		<-release
		return nil
	})

	a.Cancel("just this one")
	waitDone(t, ha)

	if sc.Context().Err() != nil {
		t.Error("canceling a series must not cancel the owner")
	}

	close(release)
	waitDone(t, hb)
	if hb.Err() != nil {
		t.Errorf("sibling should be unaffected, got %v", hb.Err())
	}
}

// =============================================================================
// TASK FAILURE CONTAINMENT
// =============================================================================

func TestPanickingBodyFailsOnlyItsTask(t *testing.T) {
	sc := newScope(t)
	s := sc.Default()

	h := s.Submit("explodes", func(ctx context.Context) error {
		panic("kaboom")
	})
	waitDone(t, h)

	if h.Err() == nil || !strings.Contains(h.Err().Error(), "kaboom") {
		t.Errorf("Expected panic error, got %v", h.Err())
	}

	// The owner is still healthy.
	ok := s.Submit("fine", func(ctx context.Context) error { return nil })
	waitDone(t, ok)
	if ok.Err() != nil {
		t.Errorf("Expected success after sibling panic, got %v", ok.Err())
	}
}

func TestAbortCutsRemainderOfTask(t *testing.T) {
	sc := newScope(t)
	s := sc.Default()
	se := &sideEffects{}

	h := s.Submit("aborting", func(ctx context.Context) error {
		se.append("before")
		Abort("giving up")
		se.append("after")
		return nil
	})
	waitDone(t, h)

	if !errors.Is(h.Err(), ErrCanceled) {
		t.Errorf("abort should finish the task as canceled, got %v", h.Err())
	}
	log := se.snapshot()
	if len(log) != 1 || log[0] != "before" {
		t.Errorf("statements after Abort must not run, got %v", log)
	}
}

// =============================================================================
// INTROSPECTION
// =============================================================================

func TestDebugString(t *testing.T) {
	sc := newScope(t)
	q := sc.New(PolicyQueue)

	if got := q.String(); got != "queue has no queued tasks" {
		t.Errorf("Unexpected empty rendering: %q", got)
	}

	started := make(chan struct{})
	release := make(chan struct{})
	h := q.Submit("fetch profile", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	})
	<-started

	got := q.String()
	if !strings.HasPrefix(got, "queue queued tasks:") {
		t.Errorf("Unexpected prefix: %q", got)
	}
	if !strings.Contains(got, `"fetch profile"`) || !strings.Contains(got, "ms") {
		t.Errorf("Expected label and elapsed time, got %q", got)
	}

	if infos := q.Tracked(); len(infos) != 1 || infos[0].Label != "fetch profile" {
		t.Errorf("Unexpected tracked snapshot: %+v", infos)
	}

	close(release)
	waitDone(t, h)

	if infos := q.Tracked(); len(infos) != 0 {
		t.Errorf("tracked records should be dropped on completion, got %+v", infos)
	}
}
