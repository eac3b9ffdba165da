// Package errs defines the error taxonomy shared by every billing module.
//
// Modules declare sentinel errors with New and callers classify any wrapped
// error with KindOf, so transports and batch loops never need to know the
// concrete sentinel.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how a caller is expected to react to it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindDuplicate    Kind = "duplicate"
	KindOverpayment  Kind = "overpayment"
	KindPrecondition Kind = "precondition"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindDispatch     Kind = "dispatch"
	KindInternal     Kind = "internal"
)

// Error is a classified sentinel. Its message is a stable snake_case code.
type Error struct {
	kind Kind
	code string
}

// New declares a sentinel error of the given kind.
func New(kind Kind, code string) *Error {
	return &Error{kind: kind, code: code}
}

func (e *Error) Error() string { return e.code }

// Kind reports the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Code returns the stable error code.
func (e *Error) Code() string { return e.code }

type detailed struct {
	base   *Error
	detail string
}

func (d *detailed) Error() string { return d.base.code + ": " + d.detail }
func (d *detailed) Unwrap() error { return d.base }
func (d *detailed) Kind() Kind    { return d.base.kind }

// Wrap attaches a human-readable detail to a sentinel while keeping errors.Is
// and KindOf working against it.
func Wrap(base *Error, format string, args ...any) error {
	return &detailed{base: base, detail: fmt.Sprintf(format, args...)}
}

type kinded interface {
	Kind() Kind
}

// KindOf returns the classification of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
