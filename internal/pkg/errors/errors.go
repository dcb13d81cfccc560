// Package errors defines the coded error type shared by senseval packages.
//
// Every error a package returns to its caller is an *AppError, or wraps one,
// so the command line can map it to an exit status and logs carry a stable
// code.
package errors

import (
	"errors"
	"fmt"
	"strconv"
)

// Error codes.
const (
	// Bad input. The run never starts.
	CodeValidation   = "VALIDATION_ERROR"
	CodeMalformedKey = "MALFORMED_KEY"
	CodeIO           = "IO_ERROR"

	// Broken invariants. These abort a run.
	CodeInvariant = "INVARIANT_VIOLATION"
	CodePartition = "PARTITION_ERROR"

	CodeUnavailable = "SERVICE_UNAVAILABLE"
	CodeTimeout     = "TIMEOUT"
	CodeInternal    = "INTERNAL_ERROR"
)

// Process exit statuses.
const (
	ExitFailure   = 1 // I/O, collaborators, anything uncoded
	ExitBadInput  = 2
	ExitInvariant = 3
)

// AppError is an error with a code, a message and optional key/value
// details.
type AppError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail sets one detail and returns e.
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

// New returns an error with code and message.
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap returns an error with code and message that wraps err.
func Wrap(code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

func ValidationError(message string) *AppError { return New(CodeValidation, message) }
func InvariantError(message string) *AppError  { return New(CodeInvariant, message) }
func PartitionError(message string) *AppError  { return New(CodePartition, message) }

func IOError(message string, err error) *AppError { return Wrap(CodeIO, message, err) }

// MalformedKeyError reports an unparsable line of a key file.
func MalformedKeyError(path string, line int, message string) *AppError {
	return New(CodeMalformedKey, message).
		WithDetail("path", path).
		WithDetail("line", strconv.Itoa(line))
}

// ServiceUnavailableError reports that service cannot be reached.
func ServiceUnavailableError(service string) *AppError {
	if service == "" {
		return New(CodeUnavailable, "service unavailable")
	}
	return New(CodeUnavailable, service+" is unavailable")
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func IsValidation(err error) bool   { return CodeOf(err) == CodeValidation }
func IsMalformedKey(err error) bool { return CodeOf(err) == CodeMalformedKey }
func IsInvariant(err error) bool    { return CodeOf(err) == CodeInvariant }
func IsPartition(err error) bool    { return CodeOf(err) == CodePartition }
func IsIO(err error) bool           { return CodeOf(err) == CodeIO }

// ExitCode maps err to a process exit status. A nil err is 0.
func ExitCode(err error) int {
	switch CodeOf(err) {
	case "":
		if err == nil {
			return 0
		}
		return ExitFailure
	case CodeValidation, CodeMalformedKey:
		return ExitBadInput
	case CodeInvariant, CodePartition:
		return ExitInvariant
	default:
		return ExitFailure
	}
}
