package errors

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error by how callers should react to it
type Kind string

const (
	// KindConfiguration is a missing or invalid spec field. It cannot self-resolve.
	KindConfiguration Kind = "Configuration"
	// KindTransient is a storage or Kafka timeout, throttling or unavailability.
	KindTransient Kind = "Transient"
	// KindCircuitOpen means the per-run circuit breaker rejected the attempt.
	KindCircuitOpen Kind = "CircuitOpen"
	// KindDataIntegrity is a checksum mismatch or an inconsistent offset range.
	KindDataIntegrity Kind = "DataIntegrity"
	// KindInternal is anything else.
	KindInternal Kind = "Internal"
)

// Error codes
const (
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeAlreadyExists    = "ALREADY_EXISTS"
	ErrCodeInvalidArgument  = "INVALID_ARGUMENT"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeCircuitOpen      = "CIRCUIT_OPEN"
	ErrCodeChecksum         = "CHECKSUM_MISMATCH"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches sentinel AppErrors by code so that wrapped copies still compare equal.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Err == nil && t.Code == e.Code && t.Message == e.Message
}

// New creates a new error
func New(code, message string) error {
	return &AppError{
		Kind:    KindInternal,
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a message
func Wrap(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Kind:    KindOf(err),
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Configuration returns a non-retryable configuration error.
func Configuration(format string, args ...interface{}) error {
	return &AppError{
		Kind:    KindConfiguration,
		Code:    ErrCodeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// Transient marks err as a retryable infrastructure failure.
func Transient(err error, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Kind:    KindTransient,
		Code:    ErrCodeUnavailable,
		Message: message,
		Err:     err,
	}
}

// CircuitOpen wraps a breaker rejection.
func CircuitOpen(err error) error {
	return &AppError{
		Kind:    KindCircuitOpen,
		Code:    ErrCodeCircuitOpen,
		Message: "circuit breaker is open",
		Err:     err,
	}
}

// DataIntegrity returns a fatal integrity error.
func DataIntegrity(format string, args ...interface{}) error {
	return &AppError{
		Kind:    KindDataIntegrity,
		Code:    ErrCodeChecksum,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithKind wraps err and forces its kind.
func WithKind(err error, kind Kind, message string) error {
	if err == nil {
		return nil
	}
	return &AppError{
		Kind:    kind,
		Code:    codeFor(kind),
		Message: message,
		Err:     err,
	}
}

// KindOf returns the kind of the outermost classified error in the chain.
// Context cancellation and deadline errors are treated as transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the operation that produced err may succeed on a later attempt.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransient, KindCircuitOpen:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether err carries the not-found code.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func codeFor(kind Kind) string {
	switch kind {
	case KindConfiguration:
		return ErrCodeInvalidArgument
	case KindTransient:
		return ErrCodeUnavailable
	case KindCircuitOpen:
		return ErrCodeCircuitOpen
	case KindDataIntegrity:
		return ErrCodeChecksum
	default:
		return ErrCodeInternal
	}
}

// Is checks if an error is of a specific type
func Is(err error, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Common errors
var (
	ErrNotFound         = New(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = New(ErrCodeAlreadyExists, "resource already exists")
	ErrInvalidArgument  = New(ErrCodeInvalidArgument, "invalid argument")
	ErrUnavailable      = New(ErrCodeUnavailable, "service unavailable")
	ErrPermissionDenied = New(ErrCodePermissionDenied, "permission denied")
)

// NotFound wraps err with the not-found sentinel so IsNotFound matches.
func NotFound(key string, err error) error {
	return &AppError{
		Kind:    KindConfiguration,
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", key),
		Err:     joinNotFound(err),
	}
}

func joinNotFound(err error) error {
	if err == nil {
		return ErrNotFound
	}
	return errors.Join(ErrNotFound, err)
}

// Message renders err for status fields, without the code prefix.
func Message(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := err.(*AppError)
	if !ok {
		return err.Error()
	}
	if appErr.Err != nil {
		return appErr.Message + ": " + Message(appErr.Err)
	}
	return appErr.Message
}
