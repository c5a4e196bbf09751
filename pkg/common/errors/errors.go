package errors

import (
	"errors"
	"fmt"
)

// Common error types used across the taskmgr library

var (
	// ErrPoolExhausted indicates that no free task slot was available at schedule time
	ErrPoolExhausted = errors.New("task pool exhausted")

	// ErrInvalidID indicates a task id that does not resolve to a currently owned slot
	ErrInvalidID = errors.New("invalid or stale task id")

	// ErrClockAnomaly indicates that a clock reading moved backwards
	ErrClockAnomaly = errors.New("clock moved backwards")

	// ErrCallbackFault indicates that a task callback panicked
	ErrCallbackFault = errors.New("task callback fault")

	// ErrInvalidConfiguration indicates invalid configuration parameters
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrClosed indicates that an operation was attempted on a closed resource
	ErrClosed = errors.New("resource is closed")
)

// ValidationError describes a rejected configuration value.
type ValidationError struct {
	Module string
	Field  string
	Value  interface{}
	Reason string
	Hint   string
}

// NewValidationError creates a ValidationError without a hint.
func NewValidationError(module, field string, value interface{}, reason string) *ValidationError {
	return &ValidationError{
		Module: module,
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// WithHint attaches a remediation hint and returns the same error for chaining.
func (e *ValidationError) WithHint(hint string) *ValidationError {
	e.Hint = hint
	return e
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: invalid %s=%v (%s)", e.Module, e.Field, e.Value, e.Reason)
	if e.Hint != "" {
		msg += " - " + e.Hint
	}
	return msg
}

// Unwrap makes every ValidationError match ErrInvalidConfiguration.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}

// OperationError wraps a failure of a named operation within a module.
type OperationError struct {
	Module    string
	Operation string
	Cause     error
	Context   string
}

// NewOperationError creates an OperationError without context.
func NewOperationError(module, operation string, cause error) *OperationError {
	return &OperationError{
		Module:    module,
		Operation: operation,
		Cause:     cause,
	}
}

// WithContext attaches free-form context and returns the same error for chaining.
func (e *OperationError) WithContext(context string) *OperationError {
	e.Context = context
	return e
}

func (e *OperationError) Error() string {
	msg := fmt.Sprintf("%s.%s failed: %v", e.Module, e.Operation, e.Cause)
	if e.Context != "" {
		msg += " (" + e.Context + ")"
	}
	return msg
}

func (e *OperationError) Unwrap() error {
	return e.Cause
}

// FaultError records a panic recovered from a task callback.
type FaultError struct {
	TaskID    uint32
	Recovered interface{}
	Stack     []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("task %#08x panicked: %v", e.TaskID, e.Recovered)
}

// Unwrap makes every FaultError match ErrCallbackFault.
func (e *FaultError) Unwrap() error {
	return ErrCallbackFault
}

// IsTemporary returns true if the error indicates a condition that may clear
// on its own, such as slots being freed by the engine
func IsTemporary(err error) bool {
	return errors.Is(err, ErrPoolExhausted)
}

// IsStale returns true if the error was caused by acting on a task id that no
// longer owns its slot
func IsStale(err error) bool {
	return errors.Is(err, ErrInvalidID)
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
