package state

import (
	"errors"
	"fmt"
)

// Error is a rejected engine request.
//
// A rejected request never mutates state: callers can treat every *Error as
// "request ignored" and keep going.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// TaskID is the task the request referred to, or 0.
	TaskID uint32
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeInvalidReference indicates an unknown task id.
	ErrCodeInvalidReference ErrorCode = "INVALID_REFERENCE"

	// ErrCodeCapacityExceeded indicates the task list is full.
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// ErrCodeInvalidTransition indicates the operation does not apply in the
	// current mode (resume while not paused, select a completed task, ...).
	ErrCodeInvalidTransition ErrorCode = "INVALID_STATE_TRANSITION"

	// ErrCodeInvalidArgument indicates a malformed task definition.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeQueueOverflow is recorded when a bounded queue drops an entry.
	// It is counted, never returned from a mutator.
	ErrCodeQueueOverflow ErrorCode = "QUEUE_OVERFLOW"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.TaskID != 0 {
		return fmt.Sprintf("%s: %s (task=%d)", e.Code, e.Message, e.TaskID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code ErrorCode, taskID uint32, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), TaskID: taskID}
}

// CodeOf returns the error code carried by err, or "" if err is not an
// engine error.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsInvalidReference returns true if err rejects an unknown task id.
func IsInvalidReference(err error) bool {
	return CodeOf(err) == ErrCodeInvalidReference
}

// IsCapacityExceeded returns true if err rejects an add on a full list.
func IsCapacityExceeded(err error) bool {
	return CodeOf(err) == ErrCodeCapacityExceeded
}

// IsInvalidTransition returns true if err rejects an inapplicable operation.
func IsInvalidTransition(err error) bool {
	return CodeOf(err) == ErrCodeInvalidTransition
}

// IsInvalidArgument returns true if err rejects a malformed task.
func IsInvalidArgument(err error) bool {
	return CodeOf(err) == ErrCodeInvalidArgument
}
