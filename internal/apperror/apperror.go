// Package apperror defines the kind-tagged error taxonomy shared across the
// tunnel core. The connectors, control-channel client, keepalive runner and
// tunnel drivers wrap failures through New/Wrap so callers can branch on
// Kind without string-matching messages; the frame codecs, the NAT-T socket
// setup and the Linux platform configurator return plain fmt errors.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets. It drives
// retry/propagation decisions in the connector and tunnel drivers.
type Kind string

const (
	Config           Kind = "config"
	Auth             Kind = "auth"
	ChallengeCanceled Kind = "challenge_canceled"
	Network          Kind = "network"
	Protocol         Kind = "protocol"
	Configure        Kind = "configure"
	KeepaliveFailure Kind = "keepalive_failure"
	Timeout          Kind = "timeout"
	NotImplemented   Kind = "not_implemented"
)

// Error is an error tagged with a Kind, optionally wrapping a cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a Kind-tagged error from a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a Kind-tagged error from a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether the first *Error found in err's chain carries the given
// Kind; *Error values wrapped further down are not consulted.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
