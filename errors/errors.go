// Package errors provides standardized error handling patterns for the media engine.
// It includes error classification, the result-code taxonomy used across pins,
// elements and the pipeline, standard error variables, and helper functions for
// consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried by the caller
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Code is the result-code taxonomy reported at the core boundary.
type Code int

const (
	// CodeOK is returned for a nil error
	CodeOK Code = iota
	// CodeInvalidParam covers nil, empty or malformed arguments
	CodeInvalidParam
	// CodeFailed is the generic failure: no common capability, rejected capability,
	// component not found
	CodeFailed
	// CodeNoProc means "not handled, apply default behavior"; it is not a true error
	CodeNoProc
	// CodeInvalidState covers operations attempted in the wrong lifecycle state
	CodeInvalidState
)

// String returns the result-code name
func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeInvalidParam:
		return "INVALID_PARAM"
	case CodeFailed:
		return "FAILED"
	case CodeNoProc:
		return "MSG_NO_PROC"
	case CodeInvalidState:
		return "INVALID_STATE"
	default:
		return "UNKNOWN"
	}
}

// Standard error variables for common conditions
var (
	// Result-code sentinels
	ErrInvalidParam = errors.New("invalid parameter")
	ErrFailed       = errors.New("operation failed")
	ErrNoProc       = errors.New("message not processed")
	ErrInvalidState = errors.New("invalid state")

	// Negotiation errors
	ErrNoCommonCap       = errors.New("no common capability")
	ErrNotNegotiated     = errors.New("pin not negotiated")
	ErrCapRejected       = errors.New("capability rejected")
	ErrMediaTypeMismatch = errors.New("media type mismatch")

	// Topology errors
	ErrPinConnected      = errors.New("pin already connected")
	ErrPinNotFound       = errors.New("pin not found")
	ErrNoSinkPin         = errors.New("no sink pin attached")
	ErrElementExists     = errors.New("element already exists")
	ErrElementNotFound   = errors.New("element not found")
	ErrComponentNotFound = errors.New("component not found")
	ErrNoAvailableLink   = errors.New("no available link")

	// Component lifecycle errors
	ErrAlreadyInitialized = errors.New("component already initialized")
	ErrNotInitialized     = errors.New("component not initialized")
	ErrShuttingDown       = errors.New("component is shutting down")

	// Message bus errors
	ErrPending           = errors.New("reply pending")
	ErrSubscriberExists  = errors.New("subscriber already exists")
	ErrSubscriberMissing = errors.New("subscriber not found")
	ErrBusClosed         = errors.New("message bus closed")

	// Data processing errors
	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Resource errors
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// IsTransient checks if an error is transient
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporary", "unavailable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	if errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig) ||
		errors.Is(err, ErrResourceExhausted) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"fatal", "panic", "out of memory"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrParsingFailed) ||
		errors.Is(err, ErrInvalidParam)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsTransient(err) {
		return ErrorTransient
	}
	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	return ErrorTransient
}

// CodeOf maps an error onto the result-code taxonomy.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNoProc):
		return CodeNoProc
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrInvalidParam),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrInvalidData),
		errors.Is(err, ErrParsingFailed):
		return CodeInvalidParam
	default:
		return CodeFailed
	}
}

// IsNoProc reports whether err is the "not handled" sentinel.
func IsNoProc(err error) bool {
	return errors.Is(err, ErrNoProc)
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// WrapState wraps an error as an INVALID_STATE failure with context
func WrapState(state, component, method, action string) error {
	return WrapInvalid(fmt.Errorf("%w: %s", ErrInvalidState, state), component, method, action)
}
