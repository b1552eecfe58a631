// Package errors provides a structured error type with wrapping and metadata
package errors

// Always import the project errors package as perr (platform/errors)

import (
	stderrs "errors"
	"fmt"
	"net/http"
)

// ErrorCode defines supported error codes used across the pipeline
// Values are stable for report compatibility; add sparingly
type ErrorCode uint16

const (
	// ErrorCodeUnknown is for unclassified errors
	ErrorCodeUnknown ErrorCode = iota

	// ErrorCodeValidation is for payloads that fail the API data contract
	ErrorCodeValidation

	// ErrorCodeUnauthorized is for HTTP 401 (bad or expired token)
	ErrorCodeUnauthorized

	// ErrorCodeForbidden is for HTTP 403 (insufficient permissions)
	ErrorCodeForbidden

	// ErrorCodeTooManyRequests is for HTTP 429 rate limiting
	ErrorCodeTooManyRequests

	// ErrorCodeUnavailable is for HTTP 5xx and other transient server faults
	ErrorCodeUnavailable

	// ErrorCodeClient is for HTTP 4xx not covered by a specific code
	ErrorCodeClient

	// ErrorCodeConnection is for transport level connect failures
	ErrorCodeConnection

	// ErrorCodeTimeout is for requests that exceeded their deadline
	ErrorCodeTimeout

	// ErrorCodeConversion is for CSV to payload conversion failures
	ErrorCodeConversion

	// ErrorCodeJSON is for JSON parsing errors in input files
	ErrorCodeJSON

	// ErrorCodeFile is for file read/write failures
	ErrorCodeFile
)

// String returns the stable label used in error histograms and reports
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeValidation:
		return "validation"
	case ErrorCodeUnauthorized:
		return "authentication"
	case ErrorCodeForbidden:
		return "access_denied"
	case ErrorCodeTooManyRequests:
		return "rate_limit"
	case ErrorCodeUnavailable:
		return "server"
	case ErrorCodeClient:
		return "client"
	case ErrorCodeConnection:
		return "connection"
	case ErrorCodeTimeout:
		return "timeout"
	case ErrorCodeConversion:
		return "conversion"
	case ErrorCodeJSON:
		return "json"
	case ErrorCodeFile:
		return "file"
	default:
		return "unknown"
	}
}

// FromStatus classifies an HTTP response status into an ErrorCode
// 2xx statuses are not errors and map to Unknown
func FromStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrorCodeForbidden
	case status == http.StatusTooManyRequests:
		return ErrorCodeTooManyRequests
	case status >= 500 && status < 600:
		return ErrorCodeUnavailable
	case status >= 400 && status < 500:
		return ErrorCodeClient
	default:
		return ErrorCodeUnknown
	}
}

// Error is the structured error type with wrapping and metadata
// msg is human/developer facing; code is machine facing
// field is optional (for validation); op is optional operation tag
// path and row attribute file-sourced errors; status and retryAfter
// carry HTTP response metadata; orig is the wrapped cause
type Error struct {
	orig       error
	msg        string
	code       ErrorCode
	field      string
	op         string
	path       string
	row        int
	status     int
	retryAfter int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}
	return e.msg
}

// Unwrap returns the wrapped error, if any
func (e *Error) Unwrap() error { return e.orig }

// Code returns the error code
func (e *Error) Code() ErrorCode { return e.code }

// Field returns the offending field path, if any
func (e *Error) Field() string { return e.field }

// Op returns the operation label, if set
func (e *Error) Op() string { return e.op }

// Path returns the originating file path, if any
func (e *Error) Path() string { return e.path }

// Row returns the 1-based source row for conversion errors, 0 when unknown
func (e *Error) Row() int { return e.row }

// Status returns the HTTP status that produced this error, 0 when non-HTTP
func (e *Error) Status() int { return e.status }

// RetryAfter returns the server-provided retry hint in seconds, 0 when absent
func (e *Error) RetryAfter() int { return e.retryAfter }

// Root returns the deepest wrapped cause
func Root(err error) error {
	for err != nil {
		u := stderrs.Unwrap(err)
		if u == nil {
			return err
		}
		err = u
	}
	return nil
}

// CodeOf extracts an ErrorCode from any error, defaulting to Unknown
func CodeOf(err error) ErrorCode {
	if e, ok := As(err); ok {
		return e.code
	}
	return ErrorCodeUnknown
}

// IsCode reports whether err has the given code
func IsCode(err error, code ErrorCode) bool { return CodeOf(err) == code }

// As unwraps and returns (*Error, true) if err is one of ours
func As(err error) (*Error, bool) {
	var e *Error
	if stderrs.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Retryable reports whether a retry of the same operation may succeed.
// Rate limits, server faults, connect failures and timeouts qualify;
// everything else is treated as permanent
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeTooManyRequests, ErrorCodeUnavailable, ErrorCodeConnection, ErrorCodeTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterOf extracts the retry-after hint from any error, 0 when absent
func RetryAfterOf(err error) int {
	if e, ok := As(err); ok {
		return e.retryAfter
	}
	return 0
}

// Mutators (copy-on-write)

// WithField attaches a field path to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithField(err error, field string) error {
	if e, ok := As(err); ok {
		c := *e
		c.field = field
		return &c
	}
	return err
}

// WithOp attaches an operation label to an *Error (copy-on-write). If err isn't *Error, returns err unchanged
func WithOp(err error, op string) error {
	if e, ok := As(err); ok {
		c := *e
		c.op = op
		return &c
	}
	return err
}

// WithPath attaches a file path, wrapping foreign errors so attribution survives
func WithPath(err error, path string) error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		c := *e
		c.path = path
		return &c
	}
	return &Error{code: ErrorCodeUnknown, msg: err.Error(), path: path, orig: err}
}

// WithRow attaches a 1-based row number to an *Error (copy-on-write)
func WithRow(err error, row int) error {
	if e, ok := As(err); ok {
		c := *e
		c.row = row
		return &c
	}
	return err
}

// WithStatus attaches the HTTP status to an *Error (copy-on-write)
func WithStatus(err error, status int) error {
	if e, ok := As(err); ok {
		c := *e
		c.status = status
		return &c
	}
	return err
}

// WithRetryAfter attaches the server retry hint in seconds (copy-on-write)
func WithRetryAfter(err error, seconds int) error {
	if e, ok := As(err); ok {
		c := *e
		c.retryAfter = seconds
		return &c
	}
	return err
}

// Constructors

// New returns a new *Error with the given code and message
func New(code ErrorCode, msg string) error { return &Error{code: code, msg: msg} }

// Newf returns a new *Error with code and formatted message
func Newf(code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...)}
}

// Wrap returns a new *Error that wraps orig with code and message
func Wrap(orig error, code ErrorCode, msg string) error {
	return &Error{code: code, msg: msg, orig: orig}
}

// Wrapf returns a new *Error that wraps orig with code and formatted message
func Wrapf(orig error, code ErrorCode, format string, a ...any) error {
	return &Error{code: code, msg: fmt.Sprintf(format, a...), orig: orig}
}

// WrapIf wraps only when err != nil (helper for 1-liners)
func WrapIf(err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, msg)
}

// Sugar

// Validationf returns a payload validation error
func Validationf(format string, a ...any) error { return Newf(ErrorCodeValidation, format, a...) }

// Unauthorizedf returns an authentication error
func Unauthorizedf(format string, a ...any) error { return Newf(ErrorCodeUnauthorized, format, a...) }

// Forbiddenf returns an access denied error
func Forbiddenf(format string, a ...any) error { return Newf(ErrorCodeForbidden, format, a...) }

// RateLimitf returns a rate limit error
func RateLimitf(format string, a ...any) error { return Newf(ErrorCodeTooManyRequests, format, a...) }

// Unavailablef returns a transient server error
func Unavailablef(format string, a ...any) error { return Newf(ErrorCodeUnavailable, format, a...) }

// Clientf returns a non-retryable client error
func Clientf(format string, a ...any) error { return Newf(ErrorCodeClient, format, a...) }

// Connectionf returns a transport connect error
func Connectionf(format string, a ...any) error { return Newf(ErrorCodeConnection, format, a...) }

// Timeoutf returns a deadline exceeded error
func Timeoutf(format string, a ...any) error { return Newf(ErrorCodeTimeout, format, a...) }

// Conversionf returns a CSV conversion error
func Conversionf(format string, a ...any) error { return Newf(ErrorCodeConversion, format, a...) }

// JSONErrf returns a JSON parse error
func JSONErrf(format string, a ...any) error { return Newf(ErrorCodeJSON, format, a...) }

// Filef returns a file operation error
func Filef(format string, a ...any) error { return Newf(ErrorCodeFile, format, a...) }

// Internalf returns a generic internal error
func Internalf(format string, a ...any) error { return Newf(ErrorCodeUnknown, format, a...) }
