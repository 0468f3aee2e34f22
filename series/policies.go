// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package series

// =============================================================================
// DEFAULT POLICY
// =============================================================================

// defaultSeries starts every task immediately. Tasks run fully
// independently; canceling one never affects the others.
type defaultSeries struct {
	base
}

// Submit starts the task in its own goroutine.
func (s *defaultSeries) Submit(label string, body Body) *Handle {
	rec := s.accept(label, body)
	if rec == nil {
		return newCanceledHandle(label)
	}
	go s.run(rec)
	return rec.handle
}

// =============================================================================
// QUEUE POLICY
// =============================================================================

// queueSeries runs tasks strictly one at a time in submission order. A
// single pump goroutine drains the queue; tasks canceled while waiting
// are skipped without their body ever running.
type queueSeries struct {
	base
	pumping bool
}

// Submit appends the task to the queue and starts the pump if it is not
// already draining.
func (s *queueSeries) Submit(label string, body Body) *Handle {
	rec := s.accept(label, body)
	if rec == nil {
		return newCanceledHandle(label)
	}

	s.mu.Lock()
	start := !s.pumping
	if start {
		s.pumping = true
	}
	s.mu.Unlock()

	if start {
		go s.pump()
	}
	return rec.handle
}

// pump drains the queue head-first. At most one pump is active per
// Series; the pumping flag flips back only when the queue is observed
// empty under the lock, so a concurrent Submit either sees the pump
// still active or starts a fresh one.
func (s *queueSeries) pump() {
	for {
		s.mu.Lock()
		if len(s.tracked) == 0 {
			s.pumping = false
			s.mu.Unlock()
			return
		}
		rec := s.tracked[0]
		s.mu.Unlock()

		// run removes the record and finishes the handle, including the
		// canceled-while-waiting skip path.
		s.run(rec)
	}
}

// =============================================================================
// CANCEL-RUNNING POLICY (latest wins)
// =============================================================================

// latestWinsSeries keeps at most one task running. A new submission
// cancels the current task and waits for it to wind down before the new
// body starts, so no two bodies are ever mid-execution together.
type latestWinsSeries struct {
	base
	current *record
}

// Submit supersedes the running task, if any, and starts the new one.
func (s *latestWinsSeries) Submit(label string, body Body) *Handle {
	rec := s.accept(label, body)
	if rec == nil {
		return newCanceledHandle(label)
	}

	s.mu.Lock()
	prev := s.current
	s.current = rec
	s.mu.Unlock()

	rec.onDone = func() {
		s.mu.Lock()
		if s.current == rec {
			s.current = nil
		}
		s.mu.Unlock()
	}

	go func() {
		if prev != nil {
			prev.handle.Cancel()
			<-prev.handle.Done()
		}
		s.run(rec)
	}()
	return rec.handle
}

// =============================================================================
// CANCEL-TENTATIVE POLICY (first wins)
// =============================================================================

// firstWinsSeries keeps at most one task running and drops submissions
// made while one is active: the dropped body is never invoked and its
// handle comes back pre-canceled. Guards against double-submit of the
// same operation.
type firstWinsSeries struct {
	base
	current *record
}

// Submit starts the task unless one is already running.
func (s *firstWinsSeries) Submit(label string, body Body) *Handle {
	s.mu.Lock()
	busy := s.current != nil
	s.mu.Unlock()
	if busy {
		return newCanceledHandle(label)
	}

	rec := s.accept(label, body)
	if rec == nil {
		return newCanceledHandle(label)
	}

	s.mu.Lock()
	if s.current != nil {
		// Lost the race to a concurrent Submit; drop this one.
		s.mu.Unlock()
		s.remove(rec)
		rec.handle.Cancel()
		rec.handle.finish(ErrCanceled)
		return rec.handle
	}
	s.current = rec
	s.mu.Unlock()

	rec.onDone = func() {
		s.mu.Lock()
		if s.current == rec {
			s.current = nil
		}
		s.mu.Unlock()
	}

	go s.run(rec)
	return rec.handle
}
