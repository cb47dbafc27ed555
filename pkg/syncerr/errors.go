// Package syncerr holds the error types shared by the sync engine and its
// collaborators.
package syncerr

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSyncInProgress is returned when a run is requested while another run on
// the same identity store has not finished.
var ErrSyncInProgress = errors.New("sync already in progress")

// NotFoundError indicates a note, file or line that does not exist.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// OutOfRangeError indicates a line index at or beyond the content length.
type OutOfRangeError struct {
	Path  string
	Line  int
	Lines int
}

func (e OutOfRangeError) Error() string {
	return fmt.Sprintf("line %d out of range in %s (%d lines)", e.Line, e.Path, e.Lines)
}

// ValidationError indicates malformed checkbox or heading input.
type ValidationError struct {
	Input  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid input %q: %s", e.Input, e.Reason)
}

// AuthError wraps credential and token failures.
type AuthError struct {
	Err error
}

func (e AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e AuthError) Unwrap() error { return e.Err }

// Kind classifies a remote failure.
type Kind string

const (
	KindAuth      Kind = "auth"
	KindRateLimit Kind = "rate_limit"
	KindServer    Kind = "server"
	KindNotFound  Kind = "not_found"
	KindNetwork   Kind = "network"
	KindUnknown   Kind = "unknown"
)

// RemoteAPIError is a failure reported by the remote task service.
type RemoteAPIError struct {
	Kind   Kind
	Status int
	Op     string
	Err    error
}

func (e *RemoteAPIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: remote %s error (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: remote %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code to a Kind.
func ClassifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusNotFound:
		return KindNotFound
	case code >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// Wrap prefixes err with the operation that failed. A nil err stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsOutOfRange reports whether err is, or wraps, an OutOfRangeError.
func IsOutOfRange(err error) bool {
	var oor OutOfRangeError
	return errors.As(err, &oor)
}

// IsRemoteKind reports whether err is a RemoteAPIError of the given kind.
func IsRemoteKind(err error, kind Kind) bool {
	var re *RemoteAPIError
	return errors.As(err, &re) && re.Kind == kind
}
