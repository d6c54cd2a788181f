package transport

import "context"

// Params is the normalized call payload captured from a caller. It must be
// structurally hashable; the caller's context is never part of it.
type Params map[string]any

// Transport performs a single outbound call. Implementations must be safe
// for concurrent use and must honor ctx cancellation by aborting the
// in-flight call.
//
// A Perform call is assumed idempotent for GET-like use, so a single
// execution may be shared across many callers.
type Transport interface {
	Perform(ctx context.Context, target string, params Params) (*Result, error)
	Close() error
}
