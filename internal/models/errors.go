package models

import (
	"fmt"
)

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failed operation can be safely re-attempted.
func (e *AppError) Retryable() bool {
	return e.Code == "CONFLICT" || e.Code == "UNAVAILABLE"
}

// Predefined error constructors

func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// NewConflictError wraps a store transaction conflict. The operation left no
// state change behind and may be retried.
func NewConflictError(err error) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: "Operation conflicted with a concurrent transaction",
		Err:     err,
	}
}

// NewUnavailableError wraps a transport failure talking to the document store.
func NewUnavailableError(err error) *AppError {
	return &AppError{
		Code:    "UNAVAILABLE",
		Message: "Document store unavailable",
		Err:     err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal error",
		Err:     err,
	}
}
