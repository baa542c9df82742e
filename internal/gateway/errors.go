package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures. Leaf components return kinds; only the
// HTTP layer translates them into status codes.
type Kind string

// Error kinds produced by the request pipeline.
const (
	KindBadRequest      Kind = "BadRequest"
	KindUnauthorized    Kind = "Unauthorized"
	KindNotFound        Kind = "NotFound"
	KindPayloadTooLarge Kind = "PayloadTooLarge"
	KindTimeout         Kind = "Timeout"
	KindUpstream        Kind = "Upstream"
	KindProcessing      Kind = "Processing"
	KindInternal        Kind = "Internal"
)

// Error carries a machine-readable kind plus a free-form message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// E builds a new Error with the given kind and message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a new Error wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to Internal.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}

// Detail extracts the human-readable message from an error chain.
func Detail(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return err.Error()
}
