package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the orchestrator.
type ErrorCode string

// Orchestration error codes
const (
	ErrContractViolation   ErrorCode = "CONTRACT_VIOLATION"
	ErrCollaboratorFailed  ErrorCode = "COLLABORATOR_FAILED"
	ErrCheckpointNotFound  ErrorCode = "CHECKPOINT_NOT_FOUND"
	ErrInvalidCheckpoint   ErrorCode = "INVALID_CHECKPOINT"
	ErrIllegalTransition   ErrorCode = "ILLEGAL_TRANSITION"
	ErrTaskActive          ErrorCode = "TASK_ACTIVE"
	ErrStepLimit           ErrorCode = "STEP_LIMIT"
	ErrInvalidConfig       ErrorCode = "INVALID_CONFIG"
	ErrStorageFailed       ErrorCode = "STORAGE_FAILED"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	TaskID  string    `json:"task_id,omitempty"`
	Stage   Stage     `json:"stage,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Code)
	if e.Stage != "" {
		prefix += fmt.Sprintf(" stage=%s", e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithTask sets the task id.
func (e *Error) WithTask(taskID string) *Error {
	e.TaskID = taskID
	return e
}

// WithStage sets the stage the error was raised in.
func (e *Error) WithStage(stage Stage) *Error {
	e.Stage = stage
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
