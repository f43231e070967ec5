package fhirerr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidatorNotInitialized = errors.New("profile validator is not initialized")
	ErrValidatorNotReady       = errors.New("profile validator is not ready")
	ErrValidationTimeout       = errors.New("profile validation timed out")
	ErrValidationCanceled      = errors.New("profile validation was canceled")
)

// HeaderValidationError is returned when one or more required request headers are missing or malformed.
type HeaderValidationError struct {
	Issues []Error
}

func (e HeaderValidationError) Error() string {
	return "header validation failed: " + joinIssues(e.Issues)
}

// BundleValidationError is returned when the Bundle misses mandatory data or requests an unsupported workflow.
type BundleValidationError struct {
	Issues []Error
}

// NewBundleValidationError creates a BundleValidationError with a single issue of kind Invalid.
func NewBundleValidationError(format string, args ...any) *BundleValidationError {
	return &BundleValidationError{Issues: []Error{New(Invalid, fmt.Sprintf(format, args...))}}
}

func (e BundleValidationError) Error() string {
	return "bundle validation failed: " + joinIssues(e.Issues)
}

// ProfileValidationError is returned when the Bundle does not conform to the FHIR profiles.
type ProfileValidationError struct {
	Issues []Error
}

func (e ProfileValidationError) Error() string {
	return "profile validation failed: " + joinIssues(e.Issues)
}

// DeserializationError is returned when the request body can't be parsed as a FHIR Bundle.
type DeserializationError struct {
	Cause error
}

func (e DeserializationError) Error() string {
	return fmt.Sprintf("unable to deserialize request body: %v", e.Cause)
}

func (e DeserializationError) Unwrap() error {
	return e.Cause
}

// ParameterValidationError is returned when a request parameter (path, query or a single key element) is invalid.
type ParameterValidationError struct {
	Message string
}

func (e ParameterValidationError) Error() string {
	return e.Message
}

// BackendCallError is returned when the backend responded with a non-success status.
// Message holds the backend's problem description; it is logged but never echoed to the sender.
type BackendCallError struct {
	StatusCode int
	Message    string
}

func (e BackendCallError) Error() string {
	return fmt.Sprintf("backend responded with status %d: %s", e.StatusCode, e.Message)
}

// BackendTransportError is returned when the backend could not be reached.
type BackendTransportError struct {
	Cause error
}

func (e BackendTransportError) Error() string {
	return fmt.Sprintf("backend transport failure: %v", e.Cause)
}

func (e BackendTransportError) Unwrap() error {
	return e.Cause
}

// BackendTimeoutError is returned when the backend did not respond within the configured time.
type BackendTimeoutError struct {
	Cause error
}

func (e BackendTimeoutError) Error() string {
	return fmt.Sprintf("backend call timed out: %v", e.Cause)
}

func (e BackendTimeoutError) Unwrap() error {
	return e.Cause
}

// ProxyInternalError is returned when the proxy itself failed, e.g. when a successful backend response could not be read.
type ProxyInternalError struct {
	Message string
	Cause   error
}

func (e ProxyInternalError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e ProxyInternalError) Unwrap() error {
	return e.Cause
}

// SchemaValidationError is returned when a mapped backend request does not conform to the backend's JSON schema.
// Details holds the evaluation result as JSON.
type SchemaValidationError struct {
	Details string
}

func (e SchemaValidationError) Error() string {
	return "backend request failed schema validation: " + e.Details
}

func joinIssues(issues []Error) string {
	messages := make([]string, 0, len(issues))
	for _, issue := range issues {
		messages = append(messages, issue.Diagnostics)
	}
	return strings.Join(messages, "; ")
}
