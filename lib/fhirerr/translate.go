package fhirerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// Category names the class of failure, used in logs and audit events.
type Category string

const (
	CategoryHeaderValidation    Category = "header-validation"
	CategoryBundleValidation    Category = "bundle-validation"
	CategoryProfileValidation   Category = "profile-validation"
	CategoryDeserialization     Category = "deserialization"
	CategoryParameterValidation Category = "parameter-validation"
	CategoryBackendCall         Category = "backend-call"
	CategoryBackendTransport    Category = "backend-transport"
	CategoryBackendTimeout      Category = "backend-timeout"
	CategorySchemaValidation    Category = "schema-validation"
	CategoryServiceUnavailable  Category = "service-unavailable"
	CategoryInternal            Category = "internal"
)

// Translation is the HTTP representation of an error.
type Translation struct {
	StatusCode int
	Outcome    fhir.OperationOutcome
	Category   Category
}

// Translate maps an error raised anywhere in the request pipeline to an HTTP status code and OperationOutcome.
// Details that could leak backend or proxy internals are replaced by generic diagnostics; callers are expected to log the error itself.
func Translate(err error) Translation {
	if e, ok := as[HeaderValidationError](err); ok {
		return badRequest(CategoryHeaderValidation, e.Issues, "Invalid request headers")
	}
	if e, ok := as[BundleValidationError](err); ok {
		return badRequest(CategoryBundleValidation, e.Issues, "Invalid Bundle")
	}
	if e, ok := as[ProfileValidationError](err); ok {
		return badRequest(CategoryProfileValidation, e.Issues, "Bundle does not conform to the FHIR profiles")
	}
	if _, ok := as[DeserializationError](err); ok {
		return badRequest(CategoryDeserialization, nil, "Unable to parse the request body as a FHIR Bundle")
	}
	if e, ok := as[ParameterValidationError](err); ok {
		return badRequest(CategoryParameterValidation, []Error{New(Invalid, e.Message)}, "")
	}
	if e, ok := as[BackendCallError](err); ok {
		return translateBackendStatus(e.StatusCode)
	}
	if _, ok := as[BackendTimeoutError](err); ok {
		return Translation{
			StatusCode: http.StatusGatewayTimeout,
			Outcome:    Outcome(New(Transient, "The receiving system did not respond in time")),
			Category:   CategoryBackendTimeout,
		}
	}
	if _, ok := as[BackendTransportError](err); ok {
		return Translation{
			StatusCode: http.StatusServiceUnavailable,
			Outcome:    Outcome(New(ReceiverUnavailable, "The receiving system could not be reached")),
			Category:   CategoryBackendTransport,
		}
	}
	if _, ok := as[SchemaValidationError](err); ok {
		return Translation{
			StatusCode: http.StatusInternalServerError,
			Outcome:    Outcome(New(ProxyServerError, "The referral could not be converted into a valid request for the receiving system")),
			Category:   CategorySchemaValidation,
		}
	}
	if errors.Is(err, ErrValidatorNotInitialized) || errors.Is(err, ErrValidatorNotReady) || errors.Is(err, ErrValidationTimeout) {
		return Translation{
			StatusCode: http.StatusServiceUnavailable,
			Outcome:    Outcome(New(Transient, "Profile validation is temporarily unavailable, retry later")),
			Category:   CategoryServiceUnavailable,
		}
	}
	if errors.Is(err, ErrValidationCanceled) || errors.Is(err, context.Canceled) {
		return internal("The request was canceled")
	}
	if _, ok := as[ProxyInternalError](err); ok {
		return internal("The proxy was unable to process the response of the receiving system")
	}
	return internal("An unexpected error occurred")
}

func badRequest(category Category, issues []Error, fallback string) Translation {
	if len(issues) == 0 {
		issues = []Error{New(SenderBadRequest, fallback)}
	}
	return Translation{
		StatusCode: http.StatusBadRequest,
		Outcome:    Outcome(issues...),
		Category:   category,
	}
}

func internal(diagnostics string) Translation {
	return Translation{
		StatusCode: http.StatusInternalServerError,
		Outcome:    Outcome(New(ProxyServerError, diagnostics)),
		Category:   CategoryInternal,
	}
}

// translateBackendStatus passes the backend status on to the sender, except 500, which is reported as 503.
func translateBackendStatus(statusCode int) Translation {
	result := Translation{
		StatusCode: statusCode,
		Category:   CategoryBackendCall,
	}
	switch {
	case statusCode == http.StatusInternalServerError || statusCode == http.StatusServiceUnavailable:
		result.StatusCode = http.StatusServiceUnavailable
		result.Outcome = Outcome(New(ReceiverUnavailable, "The receiving system was unable to process the request"))
	case statusCode == http.StatusNotImplemented:
		result.Outcome = Outcome(New(ProxyNotImplemented, "The receiving system does not support this request"))
	case statusCode >= 400 && statusCode < 500:
		result.Outcome = Outcome(New(SenderBadRequest, fmt.Sprintf("The receiving system rejected the request (status %d)", statusCode)))
	case statusCode >= 500 && statusCode < 600:
		result.Outcome = Outcome(New(ProxyServerError, fmt.Sprintf("The receiving system failed to process the request (status %d)", statusCode)))
	default:
		result.StatusCode = http.StatusInternalServerError
		result.Outcome = Outcome(New(ProxyServerError, fmt.Sprintf("The receiving system responded with an unexpected status (%d)", statusCode)))
	}
	return result
}

// as finds the first error in err's chain of type T or *T.
func as[T error](err error) (*T, bool) {
	var ptr *T
	if errors.As(err, &ptr) && ptr != nil {
		return ptr, true
	}
	var val T
	if errors.As(err, &val) {
		return &val, true
	}
	return nil, false
}
