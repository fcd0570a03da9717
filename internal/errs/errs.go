package errs

import (
	"errors"

	"github.com/playwright-community/playwright-go"
)

// Code is an application error code.
type Code string

const (
	InvalidArgument Code = "invalid_argument"
	Configuration   Code = "configuration"
	NotFound        Code = "not_found"
	Timeout         Code = "timeout"
	AssertionFailed Code = "assertion_failed"
	Unavailable     Code = "unavailable"
	Internal        Code = "internal"
)

// Error is a coded application error.
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

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
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

// MessageOf returns the outermost coded message, or "internal error" when
// the error carries no code.
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// Classify returns the code of a coded error, or maps Playwright's sentinel
// errors when the failure came straight from the driver.
func Classify(err error) Code {
	if err == nil {
		return Internal
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" && coded.Code != Internal {
		return coded.Code
	}
	switch {
	case errors.Is(err, playwright.ErrTimeout):
		return Timeout
	case errors.Is(err, playwright.ErrTargetClosed):
		return Unavailable
	default:
		return Internal
	}
}

// Step wraps a driver error from a single UI step. Timeouts keep their
// Timeout code so callers can tell an absent element from a broken driver.
func Step(step string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return Wrap(Timeout, step, err)
	}
	var coded *Error
	if errors.As(err, &coded) {
		return Wrap(coded.Code, step, err)
	}
	return Wrap(Internal, step, err)
}

// ExitCode maps an error code to a process exit status.
func ExitCode(code Code) int {
	switch code {
	case InvalidArgument:
		return 2
	case Configuration:
		return 3
	case NotFound:
		return 4
	case Timeout:
		return 5
	case AssertionFailed:
		return 6
	case Unavailable:
		return 7
	default:
		return 1
	}
}
