package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// The pipeline's error taxonomy. Per-file errors are classified at the
// file-processing boundary: transient ones are retried, validation ones are
// routed to review, terminal ones abort the run.

// TransientError wraps an error that is safe to retry (timeouts, 429/5xx
// from the extraction backend, network resets).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP
// status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// TerminalError wraps an unrecoverable infrastructure failure, such as the
// loss of the persistence backend. It aborts the run instead of the file.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// NewTerminalError marks err as run-aborting.
func NewTerminalError(err error) *TerminalError {
	return &TerminalError{Err: err}
}

// ValidationError marks malformed or missing required input. It is local to
// one page: never retried, routed to the review queue instead.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError marks err as a per-page validation failure on field.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}

// IsTerminal reports whether the error chain contains a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// IsValidation reports whether the error chain contains a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports whether the error is safe to retry: an explicit
// TransientError, a per-file deadline expiry, or a recognizably transient
// network failure. Terminal and validation errors are never transient
// regardless of what they wrap.
func IsTransient(err error) bool {
	if err == nil || IsTerminal(err) || IsValidation(err) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	// A file that ran out of its per-file budget is retried.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped errors from HTTP clients lose their type; fall back to
	// message patterns.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the status code indicates a
// server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
