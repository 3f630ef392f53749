// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package blockproc

import "cloudeng.io/errors"

// Status is the error-code type returned by fallible Processor
// operations. The zero value is OK.
type Status int

const (
	// OK indicates success.
	OK Status = iota
	// ErrAlloc indicates a failed allocation; not latched, the caller may
	// retry once memory is available.
	ErrAlloc
	// ErrSequence indicates the front-end API was called out of order
	// (e.g. Append before BeginFile); not latched.
	ErrSequence
	// ErrUnsupported indicates BeginFile was called with flag bits
	// outside the user-settable mask; not latched.
	ErrUnsupported
	// ErrIO indicates a block writer or fragment table I/O failure;
	// latched.
	ErrIO
	// ErrCompressor indicates the compressor returned an error; latched.
	ErrCompressor
	// ErrCorrupted indicates an internal consistency check failed;
	// latched.
	ErrCorrupted
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case ErrAlloc:
		return "ALLOC"
	case ErrSequence:
		return "SEQUENCE"
	case ErrUnsupported:
		return "UNSUPPORTED"
	case ErrIO:
		return "IO"
	case ErrCompressor:
		return "COMPRESSOR"
	case ErrCorrupted:
		return "CORRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Error implements error.
func (s Status) Error() string {
	return s.String()
}

// statusError pairs a Status with the underlying cause, if any.
type statusError struct {
	status Status
	cause  error
}

func (s *statusError) Error() string {
	if s.cause == nil {
		return s.status.String()
	}
	return s.status.String() + ": " + s.cause.Error()
}

func (s *statusError) Unwrap() error {
	return s.cause
}

func wrapStatus(status Status, cause error) error {
	if status == OK {
		return nil
	}
	return &statusError{status: status, cause: cause}
}

// faultLatch is the first-error-wins latch pipeline embeds to record the
// processor's fault: whichever of a worker's compressor error or an I/O
// failure reaches fileCompletion first sticks, and every later one is
// dropped. Callers that separately need a teardown error combined with
// whatever this latched, such as Destroy, read both and merge them with
// cloudeng.io/errors so neither is silently dropped.
type faultLatch struct {
	first error
}

// latch records err as the processing fault iff none has been latched
// yet. Only the first error wins; later ones are dropped, per
// spec.md/SPEC_FULL.md's error handling design.
func (f *faultLatch) latch(err error) {
	if err == nil || f.first != nil {
		return
	}
	f.first = err
}

func (f *faultLatch) get() error {
	return f.first
}

// combine merges the latched processing fault with a teardown error
// using cloudeng.io/errors so both survive when both are present.
func combine(latched, teardown error) error {
	m := errors.M{}
	m.Append(latched)
	m.Append(teardown)
	return m.Err()
}
