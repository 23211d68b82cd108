package service

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable code clients switch on. Codes are strings on the wire.
type ErrorCode string

const (
	RequiredField       ErrorCode = "5000"
	InvalidInput        ErrorCode = "5003"
	NotFound            ErrorCode = "5004"
	InternalSystemError ErrorCode = "5005"
	AlreadyDeleted      ErrorCode = "5006"
	AlreadyFound        ErrorCode = "5007"
)

// ErrUnknownObject is the cause of NotFound errors for unregistered object names.
var ErrUnknownObject = errors.New("unknown object")

// AppError is a client-facing failure. The wrapped cause, if any, stays server side.
type AppError struct {
	Code    ErrorCode `json:"errorCode"`
	Message string    `json:"message"`
	Data    any       `json:"errorData,omitempty"`
	cause   error
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.cause }

func newAppError(code ErrorCode, msg string, data any, cause error) *AppError {
	return &AppError{Code: code, Message: msg, Data: data, cause: cause}
}

func invalidInput(msg string, cause error) *AppError {
	return newAppError(InvalidInput, msg, nil, cause)
}

// AsInvalidInput reports a client mistake found outside the service, such as
// bad paging parameters.
func AsInvalidInput(err error) *AppError {
	return invalidInput(err.Error(), err)
}

func internalError(msg string, cause error) *AppError {
	return newAppError(InternalSystemError, msg, nil, cause)
}

// AsAppError returns err as an *AppError, classifying anything else as an
// internal error.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return internalError("internal error", err)
}
