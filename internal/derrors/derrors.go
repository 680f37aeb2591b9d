package derrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for API consumers. The HTTP layer maps kinds to
// status codes; everything else in the codebase only cares about the kind.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindInvalid     Kind = "invalid"
	KindUnavailable Kind = "unavailable"
	KindInternal    Kind = "internal"
)

// Error is a kind-tagged error with a human-readable detail string.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Detail, e.Err)
	}
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a kind-tagged error.
func New(kind Kind, detail string) error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf creates a kind-tagged error with a formatted detail.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap wraps err with a kind and detail. Returns nil if err is nil.
func Wrap(err error, kind Kind, detail string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Wrapf wraps err with a kind and formatted detail.
func Wrapf(err error, kind Kind, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// DetailOf returns the detail of err, or its plain message when untagged.
func DetailOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Detail
	}
	return err.Error()
}

// IsNotFound reports whether err is tagged not_found.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether err is tagged conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsInvalid reports whether err is tagged invalid.
func IsInvalid(err error) bool {
	return KindOf(err) == KindInvalid
}
