package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid job transition")
)

// Kind is the closed set of failure kinds shared by every component.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindUnauthorized        Kind = "unauthorized"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindRateLimit           Kind = "rate_limit"
	KindTimeout             Kind = "timeout"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
)

// Retryable reports whether the poll loop may retry a failure of this kind.
// Timeouts are terminal and never retried.
func Retryable(kind Kind) bool {
	return kind == KindUpstreamUnavailable || kind == KindRateLimit
}

// Surface names the subsystem that raised an error.
type Surface string

const (
	SurfaceJob             Surface = "job"
	SurfaceAsset           Surface = "asset"
	SurfaceModelResolution Surface = "model-resolution"
	SurfaceStorage         Surface = "storage"
)

// Error is a classified failure. Message is safe to show to callers; Err is
// the internal cause and only ever reaches logs.
type Error struct {
	Kind    Kind
	Surface Surface
	Message string
	Err     error
}

// NewError builds a classified error.
func NewError(kind Kind, surface Surface, message string, cause error) *Error {
	return &Error{Kind: kind, Surface: surface, Message: message, Err: cause}
}

// BadRequest builds a validation failure raised during model resolution.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Surface: SurfaceModelResolution, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Surface, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Surface, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a classified error from the chain.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the kind of a classified error, or "" for unexpected errors.
func KindOf(err error) Kind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return ""
}

// GenericFailureMessage is shown to callers for unclassified failures.
const GenericFailureMessage = "generation failed"

// SafeMessage returns the caller-facing message of err without leaking internals.
func SafeMessage(err error) string {
	if de, ok := AsError(err); ok && de.Message != "" {
		return de.Message
	}
	return GenericFailureMessage
}

// ToJobError converts err into the record stored on a failed job.
func ToJobError(err error) *JobError {
	kind := KindOf(err)
	if kind == "" {
		kind = KindUpstreamUnavailable
	}
	return &JobError{Kind: kind, Message: SafeMessage(err)}
}
