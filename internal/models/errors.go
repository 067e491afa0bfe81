package models

import "fmt"

// DefaultFailureMessage is reported when the remote side gives no usable reason
const DefaultFailureMessage = "Processing failed"

// ValidationError represents a validation error with field context
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ProcessingFailed is a transport-level failure for a single item.
// Message is what the item records as its error detail; Err keeps the cause for logs.
type ProcessingFailed struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *ProcessingFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProcessingFailed) Unwrap() error {
	return e.Err
}

// NewProcessingFailed builds a failure, falling back to DefaultFailureMessage for empty messages
func NewProcessingFailed(message string, statusCode int, err error) *ProcessingFailed {
	if message == "" {
		message = DefaultFailureMessage
	}
	return &ProcessingFailed{Message: message, StatusCode: statusCode, Err: err}
}
