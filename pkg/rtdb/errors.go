package rtdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrNotFound matches an *Error with status 404.
	ErrNotFound = errors.New("rtdb: not found")
	// ErrPermissionDenied matches an *Error with status 401 or 403.
	ErrPermissionDenied = errors.New("rtdb: permission denied")
	// ErrPreconditionFailed matches an *Error with status 412, the answer to a
	// conditional write whose if-match token is stale.
	ErrPreconditionFailed = errors.New("rtdb: precondition failed")
	// ErrStreamCancelled matches an *Error produced by a cancel stream event.
	ErrStreamCancelled = errors.New("rtdb: stream cancelled")
)

// Error is a structured error reported by the server, either as an HTTP
// error response or as a cancel event on a stream.
type Error struct {
	// Status is the HTTP status code; zero for stream cancellations.
	Status int
	// Message is the server-provided error text.
	Message string
	// ETag is the current ETag of the location when the server sent one,
	// typically alongside a 412.
	ETag string

	cancelled bool
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.cancelled {
		return fmt.Sprintf("rtdb: stream cancelled: %s", e.Message)
	}
	return fmt.Sprintf("rtdb: status %d: %s", e.Status, e.Message)
}

// StatusCode returns the HTTP status, or 0 for stream cancellations.
func (e *Error) StatusCode() int {
	return e.Status
}

// Is maps status codes onto the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrPermissionDenied:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrPreconditionFailed:
		return e.Status == http.StatusPreconditionFailed
	case ErrStreamCancelled:
		return e.cancelled
	}
	return false
}

// DecodeError reports a payload that was not the expected JSON. Status is
// set when the payload was the body of an error response.
type DecodeError struct {
	Op     string
	Status int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("rtdb: decode %s response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a request that produced no usable response:
// connection failures, timeouts, cancellation, or a broken body. It names the
// path only, never the full URL, so the auth token stays out of logs.
type TransportError struct {
	Op     string
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rtdb: %s %s %s: %v", e.Op, e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or network timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// newStatusError classifies an error response. A JSON body yields an *Error,
// taking the message from {"error": "..."} when present and from the body
// itself otherwise. An empty body yields an *Error carrying the status text.
// Any other body is not a server payload and yields a *DecodeError.
func newStatusError(op string, status int, body []byte, eTag string) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Error{Status: status, Message: http.StatusText(status), ETag: eTag}
	}
	if !json.Valid(trimmed) {
		return &DecodeError{
			Op:     op,
			Status: status,
			Err:    fmt.Errorf("status %d: error body is not valid JSON: %q", status, truncate(trimmed, maxErrorBody)),
		}
	}

	e := &Error{Status: status, ETag: eTag}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err == nil && payload.Error != nil {
		e.Message = jsonText(payload.Error)
		return e
	}
	if e.Message = jsonText(trimmed); e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

const maxErrorBody = 256

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// newCancelError builds the error for a cancel event. The payload is usually
// a JSON string; null yields an empty message.
func newCancelError(data string) *Error {
	return &Error{Message: jsonText(json.RawMessage(data)), cancelled: true}
}

// jsonText returns raw as a Go string when it is a JSON string, "" for null,
// and the trimmed raw text otherwise.
func jsonText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return s
	}
	return string(trimmed)
}
