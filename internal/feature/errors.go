package feature

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a pipeline whose scope has ended.
var ErrClosed = errors.New("feature: pipeline closed")

// PipelineError represents a misconfigured or misused pipeline.
type PipelineError struct {
	// Code identifies the error category.
	Code PipelineErrorCode

	// Message is a human-readable description.
	Message string

	// Feature is the definition name, if known.
	Feature string
}

// PipelineErrorCode categorizes pipeline errors.
type PipelineErrorCode string

const (
	// ErrCodeInvalidDefinition indicates a Definition is missing a stage.
	ErrCodeInvalidDefinition PipelineErrorCode = "INVALID_DEFINITION"

	// ErrCodeInvalidOption indicates an option value is out of range.
	ErrCodeInvalidOption PipelineErrorCode = "INVALID_OPTION"
)

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Feature != "" {
		return fmt.Sprintf("%s: %s (feature=%s)", e.Code, e.Message, e.Feature)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDefinitionError reports whether err is an invalid definition error.
// Uses errors.As to handle wrapped errors.
func IsDefinitionError(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeInvalidDefinition
	}
	return false
}

func newDefinitionError(feature, message string) *PipelineError {
	return &PipelineError{
		Code:    ErrCodeInvalidDefinition,
		Message: message,
		Feature: feature,
	}
}
