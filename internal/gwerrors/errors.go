// Package gwerrors defines the gateway's error taxonomy: classes of
// failure that the bus, parser, routing engine, transformer, crypto
// service and forwarders raise, and that the pipeline decorates envelopes
// with rather than letting propagate.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the gateway's failure classes.
type Kind int

const (
	KindConfig Kind = iota
	KindParse
	KindRouting
	KindTransform
	KindCrypto
	KindForward
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindParse:
		return "ParseError"
	case KindRouting:
		return "RoutingError"
	case KindTransform:
		return "TransformError"
	case KindCrypto:
		return "CryptoError"
	case KindForward:
		return "ForwardError"
	default:
		return fmt.Sprintf("UnknownError(%d)", int(k))
	}
}

// Code identifies the specific failure within a Kind, e.g.
// InsufficientData within KindParse.
type Code string

const (
	// Parse codes
	CodeInsufficientData  Code = "InsufficientData"
	CodeChecksumMismatch  Code = "ChecksumMismatch"
	CodeUnknownDataType   Code = "UnknownDataType"
	CodeFieldOutOfBounds  Code = "FieldOutOfBounds"
	CodeDelimiterNotFound Code = "DelimiterNotFound"

	// Forward codes
	CodeTimeout    Code = "Timeout"
	CodeConnection Code = "Connection"
	CodeRemote4xx  Code = "Remote4xx"
	CodeRemote5xx  Code = "Remote5xx"
	CodeCancelled  Code = "Cancelled"

	// Crypto codes
	CodeNoActiveKey   Code = "NoActiveKey"
	CodeDecryptFailed Code = "DecryptFailed"
	CodeMalformedWire Code = "MalformedWire"
	CodeEncryptFailed Code = "EncryptFailed"
	CodeInvalidKey    Code = "InvalidKey"

	// Config codes
	CodeInvalidSchema Code = "InvalidSchema"
	CodeInvalidRule   Code = "InvalidRule"
	CodeInvalidTarget Code = "InvalidTarget"

	// Generic
	CodeUnknown Code = "Unknown"
)

// Error is the concrete error type raised across the gateway. Callers
// that need to branch on failure class or code should use errors.As.
type Error struct {
	Kind    Kind
	Code    Code
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a gateway Error.
func New(kind Kind, code Code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap constructs a gateway Error around an existing cause.
func Wrap(kind Kind, code Code, message string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

// Is reports whether err is a gateway Error of the given Kind.
func Is(err error, kind Kind) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind == kind
	}
	return false
}

// CodeOf extracts the Code from err, if it is a gateway Error.
func CodeOf(err error) (Code, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code, true
	}
	return "", false
}

// Retryable reports whether a ForwardError code should be retried per
// spec.md §4.7 / §7: Timeout, Connection and Remote5xx are retried;
// Remote4xx and Cancelled are terminal.
func Retryable(err error) bool {
	code, ok := CodeOf(err)
	if !ok {
		return false
	}
	switch code {
	case CodeTimeout, CodeConnection, CodeRemote5xx:
		return true
	default:
		return false
	}
}
