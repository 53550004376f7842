// Package apperr defines the error kinds surfaced to the UI through the command router.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the UI.
type Kind string

// Error kinds.
const (
	KindRuntimeNotFound     Kind = "runtime_not_found"
	KindEventDeliveryFailed Kind = "event_delivery_failed"
	KindCorruptArtifact     Kind = "corrupt_artifact"
	KindLaunchFailed        Kind = "launch_failed"
	KindInUse               Kind = "in_use"
	KindAlreadyInProgress   Kind = "already_in_progress"
	KindUnreachable         Kind = "unreachable"
	KindNotInstalled        Kind = "not_installed"
	KindCancelled           Kind = "cancelled"
	KindInvalidPayload      Kind = "invalid_payload"
	KindUnknownCommand      Kind = "unknown_command"
	KindInternal            Kind = "internal"
)

// Error is an application error carrying a kind and an optional cause.
type Error struct {
	Cause   error
	Kind    Kind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
// It lets callers match with errors.Is(err, apperr.ErrInUse).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrRuntimeNotFound     = &Error{Kind: KindRuntimeNotFound, Message: "runtime not found"}
	ErrEventDeliveryFailed = &Error{Kind: KindEventDeliveryFailed, Message: "event delivery failed"}
	ErrCorruptArtifact     = &Error{Kind: KindCorruptArtifact, Message: "corrupt artifact"}
	ErrLaunchFailed        = &Error{Kind: KindLaunchFailed, Message: "launch failed"}
	ErrInUse               = &Error{Kind: KindInUse, Message: "client is in use"}
	ErrAlreadyInProgress   = &Error{Kind: KindAlreadyInProgress, Message: "operation already in progress"}
	ErrUnreachable         = &Error{Kind: KindUnreachable, Message: "server unreachable"}
	ErrNotInstalled        = &Error{Kind: KindNotInstalled, Message: "client is not installed"}
	ErrCancelled           = &Error{Kind: KindCancelled, Message: "operation cancelled"}
	ErrInvalidPayload      = &Error{Kind: KindInvalidPayload, Message: "invalid payload"}
	ErrUnknownCommand      = &Error{Kind: KindUnknownCommand, Message: "unknown command"}
)

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
