// Package validation provides reusable input validation functions for
// fdfspool configuration and endpoint parsing. All validators return nil on
// success and a *Result naming the offending field on failure.
package validation

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Common validation errors. These are sentinel errors that can be checked with errors.Is().
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrTooLong indicates a string exceeds the maximum length.
	ErrTooLong = errors.New("value exceeds maximum length")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")

	// ErrDuplicate indicates a value appears more than once where it must be unique.
	ErrDuplicate = errors.New("duplicate value")
)

// Constraints for common field types.
const (
	// MaxClientIDLength is the maximum length for cluster/client identifiers.
	MaxClientIDLength = 128

	// MaxHostLength is the maximum length of a DNS host name.
	MaxHostLength = 253

	// MaxCapacity caps per-endpoint pool capacity.
	MaxCapacity = 4096
)

// clientIDPattern matches valid client identifiers (alphanumeric, dots, dashes, underscores).
var clientIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Result represents a validation result with field context.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// MaxLength validates that a string doesn't exceed the maximum length.
func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return NewResult(field, fmt.Sprintf("exceeds maximum length of %d characters", max), ErrTooLong)
	}
	return nil
}

// IntRange validates that an integer is within the given range (inclusive).
func IntRange(field string, value, min, max int) error {
	if value < min || value > max {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", min, max), ErrOutOfRange)
	}
	return nil
}

// NonNegative validates that an integer is non-negative (>= 0).
func NonNegative(field string, value int) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// NonNegativeDuration validates that a duration is zero or positive.
func NonNegativeDuration(field string, value time.Duration) error {
	if value < 0 {
		return NewResult(field, "must be non-negative", ErrOutOfRange)
	}
	return nil
}

// Capacity validates a per-endpoint connection capacity.
func Capacity(field string, value int) error {
	return IntRange(field, value, 1, MaxCapacity)
}

// Port validates a network port number.
func Port(field string, value int) error {
	if value < 1 || value > 65535 {
		return NewResult(field, "must be between 1 and 65535", ErrOutOfRange)
	}
	return nil
}

// Host validates a host name or IP literal.
func Host(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxHostLength); err != nil {
		return err
	}
	if strings.ContainsAny(value, " \t/") {
		return NewResult(field, "must be a host name or IP address", ErrInvalidFormat)
	}
	return nil
}

// HostPort validates a host:port address and returns its parts.
func HostPort(field, value string) (string, int, error) {
	if err := Required(field, value); err != nil {
		return "", 0, err
	}

	host, portStr, err := net.SplitHostPort(strings.TrimSpace(value))
	if err != nil {
		return "", 0, NewResult(field, "must be in host:port format", ErrInvalidFormat)
	}
	if err := Host(field, host); err != nil {
		return "", 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, NewResult(field, "port must be numeric", ErrInvalidFormat)
	}
	if err := Port(field, port); err != nil {
		return "", 0, err
	}

	return host, port, nil
}

// ClientID validates a cluster/client identifier.
func ClientID(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxClientIDLength); err != nil {
		return err
	}
	if !clientIDPattern.MatchString(value) {
		return NewResult(field, "must start with a letter or digit and contain only letters, digits, '.', '-' or '_'", ErrInvalidFormat)
	}
	return nil
}

// OneOf validates that value is one of the allowed options.
func OneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return NewResult(field, fmt.Sprintf("must be one of %s", strings.Join(allowed, ", ")), ErrInvalidFormat)
}

// All runs multiple validation functions and returns the first error.
func All(validators ...func() error) error {
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

// Errors collects multiple validation errors.
type Errors []error

// Add appends an error to the collection (nil errors are ignored).
func (e *Errors) Add(err error) {
	if err != nil {
		*e = append(*e, err)
	}
}

// HasErrors returns true if any errors were collected.
func (e Errors) HasErrors() bool {
	return len(e) > 0
}

// Error returns all errors as a single error message.
func (e Errors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("multiple validation errors: ")
	for i, err := range e {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap exposes the collected errors to errors.Is/As.
func (e Errors) Unwrap() []error {
	return e
}

// First returns the first error, or nil if none.
func (e Errors) First() error {
	if len(e) == 0 {
		return nil
	}
	return e[0]
}

// Err returns nil when no errors were collected, the collection otherwise.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
