package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation          ErrorType = "validation"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeDimensionMismatch   ErrorType = "dimension_mismatch"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeGenerationRefused   ErrorType = "generation_refused"
	ErrorTypeInternal            ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is checks. Never mutate them; use the Wrap helpers
// to attach context.
var (
	ErrEmptyQuestion       = NewDomainError(ErrorTypeValidation, "question cannot be empty", nil)
	ErrNoEvidence          = NewDomainError(ErrorTypeNotFound, "Nessun documento rilevante trovato", nil)
	ErrDimensionMismatch   = NewDomainError(ErrorTypeDimensionMismatch, "embedding dimension does not match the index", nil)
	ErrUpstreamUnavailable = NewDomainError(ErrorTypeUpstreamUnavailable, "upstream service unavailable", nil)
	ErrInternal            = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

func isType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsDimensionMismatchError checks if an error is an embedding/index size mismatch
func IsDimensionMismatchError(err error) bool {
	return isType(err, ErrorTypeDimensionMismatch)
}

// IsUpstreamUnavailableError checks if a remote dependency failed or timed out
func IsUpstreamUnavailableError(err error) bool {
	return isType(err, ErrorTypeUpstreamUnavailable)
}

// IsGenerationRefusedError checks if the model declined or answered empty
func IsGenerationRefusedError(err error) bool {
	return isType(err, ErrorTypeGenerationRefused)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInvalidInput wraps an error as a validation error
func WrapInvalidInput(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, err)
}

// WrapUpstream wraps a remote call failure
func WrapUpstream(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeUpstreamUnavailable, message, err)
}

// WrapDimensionMismatch reports an embedding of the wrong length
func WrapDimensionMismatch(expected, got int) *DomainError {
	return NewDomainError(ErrorTypeDimensionMismatch,
		fmt.Sprintf("expected %d dimensions, got %d", expected, got), nil).
		WithDetail("expected", expected).
		WithDetail("got", got)
}

// WrapRefused reports a refused or empty generation
func WrapRefused(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeGenerationRefused, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeInternal, message, err)
}
