package model

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError reports a rejected write or an invalid definition.
// Surfaced immediately to the caller; never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether any error in the chain is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports an operation on a non-existent entity, attribute,
// value record, pipeline, or run.
type NotFoundError struct {
	Kind string // "entity", "attribute", "value", "pipeline", "run"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsNotFound reports whether any error in the chain is a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// CircularDependencyError is raised by the dependency resolver when the
// pipeline graph contains a cycle. Fatal to the sweep that requested it.
type CircularDependencyError struct {
	Pipelines []string
}

func (e *CircularDependencyError) Error() string {
	if len(e.Pipelines) == 0 {
		return "circular dependency detected between pipelines"
	}
	return fmt.Sprintf("circular dependency detected between pipelines: %s",
		strings.Join(e.Pipelines, ", "))
}

// IsCircularDependency reports whether any error in the chain is a
// CircularDependencyError.
func IsCircularDependency(err error) bool {
	var cde *CircularDependencyError
	return errors.As(err, &cde)
}

// ModuleExecutionError wraps a failure inside a pipeline module chain for one
// entity. Caught per entity; never propagates to sibling entities or to the
// run as a whole.
type ModuleExecutionError struct {
	Kind     ModuleKind
	ModuleID string
	Err      error
}

func (e *ModuleExecutionError) Error() string {
	return fmt.Sprintf("module %s (%s): %v", e.ModuleID, e.Kind, e.Err)
}

func (e *ModuleExecutionError) Unwrap() error {
	return e.Err
}

// IsModuleExecution reports whether any error in the chain is a
// ModuleExecutionError.
func IsModuleExecution(err error) bool {
	var mee *ModuleExecutionError
	return errors.As(err, &mee)
}
