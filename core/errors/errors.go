// Package errors provides the error taxonomy shared by the transcoder packages.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a stored document or resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates malformed markup, model JSON or arguments
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal indicates an internal failure
	ErrInternal = errors.New("internal error")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// NotFoundError represents a missing stored document or resource
type NotFoundError struct {
	Resource string // Type of resource (e.g., "document", "theme")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents a model that breaks a document invariant
type ValidationError struct {
	Field   string // Field or span that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents a failed read or write
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents input that could not be decoded. For markup it
// names the offending tag and attribute.
type ParseError struct {
	Format    string // Format being parsed (e.g., "markup", "model", "theme")
	Tag       string // Tag name, if applicable
	Attribute string // Attribute name, if applicable
	Value     string // Offending value
	Message   string // Error details
	Err       error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	switch {
	case e.Tag != "" && e.Attribute != "":
		return fmt.Sprintf("failed to parse %s: <%s %s=%q>: %s", e.Format, e.Tag, e.Attribute, e.Value, e.Message)
	case e.Tag != "":
		return fmt.Sprintf("failed to parse %s: <%s>: %s", e.Format, e.Tag, e.Message)
	default:
		return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
	}
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError for a decoder or parser failure
func NewParse(format string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		Message: err.Error(),
		Err:     err,
	}
}

// NewAttributeParse creates a ParseError for a malformed tag attribute
func NewAttributeParse(tag, attribute, value string, err error) *ParseError {
	return &ParseError{
		Format:    "markup",
		Tag:       tag,
		Attribute: attribute,
		Value:     value,
		Message:   "not an integer",
		Err:       err,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
