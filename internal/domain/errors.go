package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorCode represents a specific type of error in the domain
type ErrorCode string

const (
	// Common errors
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeCanceled      ErrorCode = "CANCELED"
	CodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// Request validation errors
	CodeValidation    ErrorCode = "VALIDATION_ERROR"
	CodeMissingField  ErrorCode = "MISSING_FIELD"
	CodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	CodeOutOfRange    ErrorCode = "OUT_OF_RANGE"

	// Upstream (generative API) errors
	CodeUpstreamQuotaExhausted    ErrorCode = "UPSTREAM_QUOTA_EXHAUSTED"
	CodeUpstreamForbidden         ErrorCode = "UPSTREAM_FORBIDDEN"
	CodeUpstreamOverloaded        ErrorCode = "UPSTREAM_OVERLOADED"
	CodeUpstreamMalformedResponse ErrorCode = "UPSTREAM_MALFORMED_RESPONSE"
	CodeNetwork                   ErrorCode = "NETWORK_ERROR"
	CodeAllCredentialsExhausted   ErrorCode = "ALL_CREDENTIALS_EXHAUSTED"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// WithContext attaches a diagnostic key/value that is exposed to API callers.
func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// MarshalJSON implements the json.Marshaler interface
func (e *DomainError) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Context map[string]interface{} `json:"context,omitempty"`
	}{
		Code:    string(e.Code),
		Message: e.Message,
		Context: e.Context,
	})
}

// NewError creates a new DomainError
func NewError(code ErrorCode, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewInvalidInputError(message string) *DomainError {
	return NewError(CodeInvalidInput, message, nil)
}

func NewInternalError(message string, cause error) *DomainError {
	return NewError(CodeInternal, message, cause)
}

func NewConfigurationError(message string) *DomainError {
	return NewError(CodeConfiguration, message, nil)
}

func NewCanceledError(cause error) *DomainError {
	return NewError(CodeCanceled, "Quiz generation was canceled", cause)
}

// NewAllCredentialsExhaustedError builds the terminal error of a generation request.
// The message is chosen from the category of the last upstream failure so callers
// can tell "try again later" apart from "contact support".
func NewAllCredentialsExhaustedError(last *UpstreamError, attempts int) *DomainError {
	category := CategoryUnknown
	var cause error
	if last != nil {
		category = last.Category
		cause = last
	}
	return NewError(CodeAllCredentialsExhausted, exhaustedMessage(category), cause).
		WithContext("last_category", string(category)).
		WithContext("attempts", attempts)
}

func exhaustedMessage(category FailureCategory) string {
	switch category {
	case CategoryQuota:
		return "All API credentials have exhausted their quota. Please try again later."
	case CategoryForbidden:
		return "All API credentials were rejected by the quiz provider. Please contact support."
	case CategoryOverloaded:
		return "The quiz provider is overloaded right now. Please try again in a few minutes."
	case CategoryMalformed:
		return "The quiz provider returned an invalid quiz. Please try again."
	case CategoryNetwork:
		return "Could not reach the quiz provider. Please try again shortly."
	default:
		return "Quiz generation is temporarily unavailable. Please try again later."
	}
}

// IsCode reports whether err is a DomainError carrying code.
func IsCode(err error, code ErrorCode) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// ValidationError describes one invalid request field.
type ValidationError struct {
	Field   string    `json:"field"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid field of a request.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return "validation failed"
	}
	if len(v) == 1 {
		return v[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
}

func NewMissingFieldError(field string) ValidationError {
	return ValidationError{Field: field, Code: CodeMissingField, Message: "field is required"}
}

func NewInvalidFormatError(field string, value interface{}) ValidationError {
	return ValidationError{Field: field, Code: CodeInvalidFormat, Message: fmt.Sprintf("invalid value %v", value)}
}

func NewOutOfRangeError(field string, value, min, max int) ValidationError {
	return ValidationError{
		Field:   field,
		Code:    CodeOutOfRange,
		Message: fmt.Sprintf("value %d is out of range [%d, %d]", value, min, max),
	}
}
