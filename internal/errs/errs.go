package errs

import (
	"errors"
	"fmt"
)

// Code is a verification error code.
type Code string

const (
	Injection        Code = "injection"
	Navigation       Code = "navigation"
	ElementNotFound  Code = "element_not_found"
	AmbiguousElement Code = "ambiguous_element"
	Interaction      Code = "interaction"
	Timeout          Code = "timeout"
	Evaluation       Code = "evaluation"
	Assertion        Code = "assertion"
	ArtifactWrite    Code = "artifact_write"
	Cancelled        Code = "cancelled"
	InvalidArgument  Code = "invalid_argument"
	Internal         Code = "internal"
)

// Error is a coded verification error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// Wrapf creates a coded error with a formatted message and cause.
func Wrapf(code Code, cause error, format string, args ...any) error {
	return Wrap(code, fmt.Sprintf(format, args...), cause)
}

// CodeOf returns the error code, defaulting to internal.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) {
		if coded.Code == "" {
			return Internal
		}
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	for err != nil {
		var coded *Error
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Err
	}
	return false
}

// MessageOf returns the outermost coded message without the cause chain.
// Uncoded errors report their own text; run reports are operator-facing.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return err.Error()
}

// IsInfra reports whether the code describes a failure of the environment
// rather than of the application under test. Infra failures abort a run.
func IsInfra(code Code) bool {
	switch code {
	case Assertion, ArtifactWrite:
		return false
	default:
		return true
	}
}

// IsFatal reports whether an error with this code must stop a run even when
// the failing step is marked independent.
func IsFatal(code Code) bool {
	return code != ArtifactWrite && IsInfra(code)
}
