// Package errors provides structured error types for the fdfspool connection
// layer. Errors carry a category code so the file-transfer command layer can
// decide what to do with them (retry, reconfigure, give up) without string
// matching.
//
// This package provides:
//   - Sentinel errors for common error conditions
//   - Error codes for categorization
//   - Error wrapping with context preservation
//   - Package-prefixed sentinels for the pool, transport and registry layers
package errors

import (
	"errors"
	"fmt"
)

// Error codes for categorizing errors.
const (
	CodeInternal      = 1000 // Unexpected failure
	CodeConfiguration = 1001 // Bad or missing configuration
	CodeNotFound      = 1002 // Resource not found
	CodeConnection    = 1003 // Transport establishment failed
	CodeTimeout       = 1004 // Operation timed out
	CodeCanceled      = 1005 // Caller abandoned the operation
	CodeClosed        = 1006 // Resource already closed
	CodeInvalidInput  = 1007 // Malformed input
	CodeRateLimited   = 1008 // Local rate limit refused the operation
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates the caller gave up on an operation.
	ErrCanceled = errors.New("operation canceled")

	// ErrRateLimited indicates a rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrConnection indicates a connection error.
	ErrConnection = errors.New("connection error")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")
)

// Pool errors
var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = fmt.Errorf("pool: %w", ErrClosed)

	// ErrPoolAcquireTimeout is returned when a caller waited past the
	// acquire timeout for a free connection.
	ErrPoolAcquireTimeout = fmt.Errorf("pool: acquire: %w", ErrTimeout)

	// ErrPoolAcquireCanceled is returned when a caller's context ended
	// while it was waiting for a free connection.
	ErrPoolAcquireCanceled = fmt.Errorf("pool: acquire: %w", ErrCanceled)

	// ErrPoolDial indicates a new connection to the endpoint could not be established.
	ErrPoolDial = fmt.Errorf("pool: dial: %w", ErrConnection)
)

// Transport errors
var (
	// ErrTransportUnsupported indicates the configured network is unknown.
	ErrTransportUnsupported = fmt.Errorf("transport: unsupported network: %w", ErrConfiguration)

	// ErrTransportNotI2P indicates an endpoint host is not an I2P destination.
	ErrTransportNotI2P = fmt.Errorf("transport: not an I2P destination: %w", ErrInvalidInput)

	// ErrTransportRateLimited indicates a dial was refused by the local dial limiter.
	ErrTransportRateLimited = fmt.Errorf("transport: %w", ErrRateLimited)

	// ErrCircuitOpen indicates a dial was rejected because the endpoint
	// failed repeatedly and its circuit breaker is open.
	ErrCircuitOpen = fmt.Errorf("circuit breaker open: %w", ErrConnection)
)

// Registry errors
var (
	// ErrRegistryNoCoordinators indicates a registry has no coordinator endpoints.
	ErrRegistryNoCoordinators = fmt.Errorf("registry: no coordinator endpoints: %w", ErrConfiguration)

	// ErrRegistryInvalidClient indicates an empty client identifier.
	ErrRegistryInvalidClient = fmt.Errorf("registry: client id is required: %w", ErrConfiguration)

	// ErrRegistryUnknownClient indicates Get was called for an id that was never initialized.
	ErrRegistryUnknownClient = fmt.Errorf("registry: client %w: %w", ErrNotFound, ErrConfiguration)
)

// Error is a structured error with a code and safe message.
type Error struct {
	// Code is the error code for categorization
	Code int `json:"code"`
	// Message is a short description of what failed
	Message string `json:"message"`
	// Err is the underlying error
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new structured error with the given code and message.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Connectivity wraps a transport failure against addr. The result matches
// both ErrPoolDial and the original cause under errors.Is.
func Connectivity(addr string, err error) *Error {
	return Wrap(CodeConnection, "connect "+addr, errors.Join(ErrPoolDial, err))
}

// FromSentinel creates a structured error from a sentinel error.
// It assigns an error code based on the error type.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}

	return &Error{
		Code:    CodeOf(err),
		Message: err.Error(),
		Err:     err,
	}
}

// CodeOf maps an error to its category code.
func CodeOf(err error) int {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrConnection):
		return CodeConnection
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrCanceled):
		return CodeCanceled
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsConnectivity returns true if the error indicates a failed connection attempt.
func IsConnectivity(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled returns true if the caller abandoned the operation.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsInvalidInput returns true if the error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
