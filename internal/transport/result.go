package transport

import (
	"bytes"
	"io"
	"net/http"
)

// Result is a fully buffered call outcome. The payload is immutable once
// the Result is built, which is what makes a single transport execution
// safe to fan out: every caller gets its own view via Clone and its own
// reader via Body, so one caller draining the body never starves another.
type Result struct {
	// Status is the HTTP status code, or 0 for transports without one.
	Status int
	// Header carries response metadata. May be nil.
	Header http.Header

	payload []byte
}

// NewResult builds a Result over payload. The payload slice is owned by the
// Result afterwards and must not be mutated by the caller.
func NewResult(status int, header http.Header, payload []byte) *Result {
	return &Result{Status: status, Header: header, payload: payload}
}

// Clone returns an independently consumable view of r. The immutable
// payload bytes are shared; the header is copied so callers can mutate
// their own view freely.
func (r *Result) Clone() *Result {
	var header http.Header
	if r.Header != nil {
		header = r.Header.Clone()
	}
	return &Result{Status: r.Status, Header: header, payload: r.payload}
}

// Body returns a fresh reader over the payload. Every call starts at the
// beginning; readers obtained from different calls do not interact.
func (r *Result) Body() io.Reader {
	return bytes.NewReader(r.payload)
}

// Bytes returns a copy of the payload.
func (r *Result) Bytes() []byte {
	return append([]byte(nil), r.payload...)
}

// Len returns the payload size in bytes.
func (r *Result) Len() int {
	return len(r.payload)
}
