// Package maperr classifies failures raised while driving a map canvas.
//
// Every error carries a Kind and wraps an errbuilder error so callers can
// still use errbuilder.CodeOf for coarse handling (exit codes, HTTP status).
package maperr

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/errbuilder-go"
)

// Kind is the failure category.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindNotReady      Kind = "not_ready"
	KindNotFound      Kind = "not_found"
	KindInteraction   Kind = "interaction"
	KindInternal      Kind = "internal"
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(kind Kind, code errbuilder.ErrCode, msg string, cause error) *Error {
	b := errbuilder.New().WithCode(code).WithMsg(msg)
	if cause != nil {
		b = b.WithCause(cause)
	}
	return &Error{Kind: kind, err: b}
}

// Configuration reports an invalid layer definition or style override.
func Configuration(format string, args ...any) error {
	return newError(KindConfiguration, errbuilder.CodeInvalidArgument, fmt.Sprintf(format, args...), nil)
}

// NotReady reports an operation attempted before the canvas finished loading.
func NotReady(format string, args ...any) error {
	return newError(KindNotReady, errbuilder.CodeFailedPrecondition, fmt.Sprintf(format, args...), nil)
}

// NotFound reports an unknown layer, source or primitive.
func NotFound(format string, args ...any) error {
	return newError(KindNotFound, errbuilder.CodeNotFound, fmt.Sprintf(format, args...), nil)
}

// Interaction reports a pointer event that could not be resolved.
func Interaction(format string, args ...any) error {
	return newError(KindInteraction, errbuilder.CodeInvalidArgument, fmt.Sprintf(format, args...), nil)
}

// Internal wraps an unexpected failure from the canvas or a dependency.
func Internal(cause error, format string, args ...any) error {
	return newError(KindInternal, errbuilder.CodeInternal, fmt.Sprintf(format, args...), cause)
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// Message returns the human readable message without the kind prefix.
func Message(err error) string {
	var builder *errbuilder.ErrBuilder
	if errors.As(err, &builder) && builder.Msg != "" {
		return builder.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
