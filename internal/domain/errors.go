package domain

import (
	"errors"
	"net/http"
)

// ErrorKind is the closed set of failure categories surfaced by the core.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindTooManyInflight   ErrorKind = "too_many_inflight"
	KindLimitExceeded     ErrorKind = "limit_exceeded"
	KindProvider          ErrorKind = "provider"
	KindNoAssetsProcessed ErrorKind = "no_assets_processed"
	KindInvalidState      ErrorKind = "invalid_state"
	KindNotFound          ErrorKind = "not_found"
	KindInternal          ErrorKind = "internal"
)

// Error is a tagged error constructed at the failure site. Callers branch on
// Kind rather than inspecting message text or guessing at shapes.
type Error struct {
	Kind      ErrorKind
	Message   string
	HTTPState int
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// KindOf returns the kind carried by err, or KindInternal when err is not a
// domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg, HTTPState: http.StatusUnprocessableEntity}
}

func NewTooManyInflight() *Error {
	return &Error{Kind: KindTooManyInflight, Message: "another generation is already in progress", HTTPState: http.StatusConflict}
}

func NewLimitExceeded() *Error {
	return &Error{Kind: KindLimitExceeded, Message: "monthly generation limit reached", HTTPState: http.StatusForbidden}
}

func NewProviderError(msg string, retryable bool, cause error) *Error {
	return &Error{Kind: KindProvider, Message: msg, HTTPState: http.StatusBadGateway, Retryable: retryable, Cause: cause}
}

func NewNoAssetsProcessed(cause error) *Error {
	return &Error{Kind: KindNoAssetsProcessed, Message: "no generated assets could be processed", HTTPState: http.StatusBadGateway, Cause: cause}
}

func NewInvalidState(msg string) *Error {
	return &Error{Kind: KindInvalidState, Message: msg, HTTPState: http.StatusConflict}
}

func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, HTTPState: http.StatusNotFound}
}

// ErrDuplicateOperation marks a uniqueness-constraint hit that the caller is
// expected to resolve by reloading the existing row (idempotency replays).
var ErrDuplicateOperation = errors.New("duplicate operation")
