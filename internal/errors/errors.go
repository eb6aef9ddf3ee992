package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeInvalidArgument ErrorType = "INVALID_ARGUMENT"
	ErrorTypeIOFailure       ErrorType = "IO_FAILURE"
	ErrorTypeCancelled       ErrorType = "USER_CANCELLED"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf(format, args...),
	}
}

func InvalidArgument(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeInvalidArgument,
		Message: fmt.Sprintf(format, args...),
	}
}

// IOFailure wraps a filesystem error so callers can distinguish it from
// user-driven outcomes like Cancelled.
func IOFailure(message string, err error) *Error {
	return &Error{
		Type:    ErrorTypeIOFailure,
		Message: message,
		Err:     err,
	}
}

func Cancelled(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeCancelled,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsType reports whether err is (or wraps) an *Error of the given type.
func IsType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

func IsNotFound(err error) bool        { return IsType(err, ErrorTypeNotFound) }
func IsInvalidArgument(err error) bool { return IsType(err, ErrorTypeInvalidArgument) }
func IsCancelled(err error) bool       { return IsType(err, ErrorTypeCancelled) }
