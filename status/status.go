// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package status defines the progress value tracked per operation.
//
// A Status is an immutable tagged value with four variants:
//
//   - NotStarted: nothing has happened yet (the zero value)
//   - Loading: work is in flight, optionally with a progress fraction
//   - Success: work finished normally
//   - Issue: work failed, with a user-facing message and code
//
// The narrow accessors (Progress, Message, Code) are only valid for the
// variant that carries the payload and panic otherwise. Call sites are
// expected to branch on Kind (or the Is* helpers) first; a wrong-variant
// access is a programming error, not a condition to default away.
package status

import "fmt"

// =============================================================================
// KIND
// =============================================================================

// Kind identifies the variant of a Status value.
type Kind int

const (
	// NotStarted indicates no work has been submitted for the key.
	NotStarted Kind = iota

	// Loading indicates work is in flight.
	Loading

	// Success indicates work completed normally.
	Success

	// Issue indicates work terminated with a failure.
	Issue
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case NotStarted:
		return "NotStarted"
	case Loading:
		return "Loading"
	case Success:
		return "Success"
	case Issue:
		return "Issue"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// =============================================================================
// STATUS
// =============================================================================

// UnknownProgress is the Loading progress value meaning "no estimate".
const UnknownProgress = -1.0

// UnknownCode is the Issue code value meaning "no specific code".
const UnknownCode = -1

// Status is an immutable progress value. The zero value is NotStarted.
type Status struct {
	kind     Kind
	progress float64
	message  string
	code     int
}

// New constructors. Statuses are values; there is nothing to mutate or
// share, so they are returned by value everywhere.

// Idle returns the NotStarted status. Identical to the zero value, so
// map lookups that miss and explicit Idle() writes compare equal.
func Idle() Status {
	return Status{}
}

// InProgress returns a Loading status with no progress estimate.
func InProgress() Status {
	return Status{kind: Loading, progress: UnknownProgress}
}

// InProgressAt returns a Loading status with the given progress fraction.
// The fraction must be in [0, 1] or UnknownProgress.
func InProgressAt(progress float64) Status {
	if progress != UnknownProgress && (progress < 0 || progress > 1) {
		panic(fmt.Sprintf("status: progress %v out of range [0,1]", progress))
	}
	return Status{kind: Loading, progress: progress}
}

// Done returns the Success status.
func Done() Status {
	return Status{kind: Success}
}

// Failed returns an Issue status with the given message and code. Pass
// UnknownCode when no domain code applies.
func Failed(message string, code int) Status {
	return Status{kind: Issue, message: message, code: code}
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Kind returns the variant tag.
func (s Status) Kind() Kind {
	return s.kind
}

// IsNotStarted reports whether the status is NotStarted.
func (s Status) IsNotStarted() bool { return s.kind == NotStarted }

// IsLoading reports whether the status is Loading.
func (s Status) IsLoading() bool { return s.kind == Loading }

// IsSuccess reports whether the status is Success.
func (s Status) IsSuccess() bool { return s.kind == Success }

// IsIssue reports whether the status is Issue.
func (s Status) IsIssue() bool { return s.kind == Issue }

// IsTerminal reports whether the status is Success or Issue.
func (s Status) IsTerminal() bool {
	return s.kind == Success || s.kind == Issue
}

// Progress returns the progress fraction of a Loading status, or
// UnknownProgress when no estimate is available.
// Panics if the status is not Loading.
func (s Status) Progress() float64 {
	if s.kind != Loading {
		panic(fmt.Sprintf("status: Progress called on %s", s.kind))
	}
	return s.progress
}

// Message returns the failure message of an Issue status.
// Panics if the status is not Issue.
func (s Status) Message() string {
	if s.kind != Issue {
		panic(fmt.Sprintf("status: Message called on %s", s.kind))
	}
	return s.message
}

// Code returns the failure code of an Issue status.
// Panics if the status is not Issue.
func (s Status) Code() int {
	if s.kind != Issue {
		panic(fmt.Sprintf("status: Code called on %s", s.kind))
	}
	return s.code
}

// =============================================================================
// FORMATTING
// =============================================================================

// String returns a diagnostic rendering of the status. Not parsed by
// anything; intended for logs and debug views.
func (s Status) String() string {
	switch s.kind {
	case Loading:
		if s.progress == UnknownProgress {
			return "Loading"
		}
		return fmt.Sprintf("Loading(%.0f%%)", s.progress*100)
	case Issue:
		return fmt.Sprintf("Issue(%q, %d)", s.message, s.code)
	default:
		return s.kind.String()
	}
}
