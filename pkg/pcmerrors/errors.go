// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package pcmerrors defines the error taxonomy used across the PMU engine:
// backends report a structured kind, and callers classify with errors.As
// rather than string matching.
package pcmerrors

import (
	stdliberrors "errors"
	"fmt"
)

var (
	As     = stdliberrors.As
	Is     = stdliberrors.Is
	Join   = stdliberrors.Join
	New    = stdliberrors.New
	Unwrap = stdliberrors.Unwrap
)

// Kind classifies a failure the way the engine's callers need to react to
// it, independent of which backend produced it.
type Kind int

const (
	// AccessDenied means a backend reported insufficient privilege.
	// Fatal for the containing operation.
	AccessDenied Kind = iota
	// Busy means the PMU is held by another client, local or remote.
	// Callers may retry.
	Busy
	// UnsupportedProcessor means the running model id is not in the
	// uncore registry. Core-only counters may still work.
	UnsupportedProcessor
	// HardwareAbsent means a PCI function or MMIO page does not exist.
	// Never aborts the whole operation; treated as "device absent".
	HardwareAbsent
	// TransientIO means a short read or EINTR. The caller already
	// retried internally with bounded attempts by the time this
	// surfaces.
	TransientIO
	// Invariant means a precondition was violated, e.g. program called
	// twice without reset.
	Invariant
)

func (k Kind) String() string {
	switch k {
	case AccessDenied:
		return "access denied"
	case Busy:
		return "busy"
	case UnsupportedProcessor:
		return "unsupported processor"
	case HardwareAbsent:
		return "hardware absent"
	case TransientIO:
		return "transient io"
	case Invariant:
		return "invariant violation"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carrying a Kind. Use As to recover it
// from a wrapped error chain.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewKind constructs a classified Error. op identifies the failing operation
// (e.g. "msr.Read", "program") for log correlation.
func NewKind(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies an underlying error under kind, preserving it for
// errors.Unwrap/errors.Is chains.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err is classified as kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !stdliberrors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// RetryableError marks an error whose operation may be retried, mirroring
// the engine's bounded TransientIO policy.
type RetryableError interface {
	error
	Retryable()
}

type retryableError struct {
	text string
}

func (r *retryableError) Error() string { return r.text }
func (r *retryableError) Retryable()    {}

func NewRetryable(text string) RetryableError {
	return &retryableError{text}
}

func Retryable(err error) bool {
	var rerr RetryableError
	return As(err, &rerr)
}
