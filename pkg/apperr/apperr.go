package apperr

import (
	"errors"
	"fmt"
)

type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Constructors
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func InvalidArg(msg string) error {
	return New(CodeInvalidArgument, msg)
}

func NotFound(msg string) error {
	return New(CodeNotFound, msg)
}

func DuplicateRequest(msg string) error {
	return New(CodeDuplicateRequest, msg)
}

func Unauthorized(msg string) error {
	return New(CodeUnauthorized, msg)
}

func InvalidTransition(msg string) error {
	return New(CodeInvalidTransition, msg)
}

func CapacityExceeded(msg string) error {
	return New(CodeCapacityExceeded, msg)
}

func MalformedPayload(msg string) error {
	return New(CodeMalformedPayload, msg)
}

func TransportFailure(msg string, cause error) error {
	return Wrap(CodeTransportFailure, msg, cause)
}

func Internal(msg string) error {
	return New(CodeInternal, msg)
}

// CodeOf extracts the Code from err, or CodeUnknown for foreign errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
