package coalescer

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Call after the coordinator has been closed.
var ErrClosed = errors.New("coordinator closed")

// SignatureError reports parameters that could not be hashed
// deterministically. It is surfaced to the offending caller before any
// registry state is touched.
type SignatureError struct {
	Target string
	Cause  error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("cannot compute signature for %q: %v", e.Target, e.Cause)
}

func (e *SignatureError) Unwrap() error {
	return e.Cause
}

// TransportError reports a failed transport call. Every caller still joined
// to the batch receives the same TransportError. It is never produced by
// this coordinator's own escalated cancellation.
type TransportError struct {
	Target string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport call to %q failed: %v", e.Target, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// CanceledError reports that this caller's own cancellation fired. It is
// delivered only to the canceling caller, never to siblings.
type CanceledError struct {
	Cause error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("call canceled: %v", e.Cause)
}

func (e *CanceledError) Unwrap() error {
	return e.Cause
}
