package fhirerr

import (
	"github.com/dhcw/wpas-referral-proxy/lib/to"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// HTTPErrorCodeSystem is the NHS code system for proxy-level error codes.
const HTTPErrorCodeSystem = "https://fhir.nhs.uk/CodeSystem/http-error-codes"

// IssueTypeSystem is the FHIR code system for OperationOutcome issue types.
const IssueTypeSystem = "http://hl7.org/fhir/issue-type"

// Kind identifies a category of error that can be reported to the sender in an OperationOutcome.
type Kind int

const (
	SenderBadRequest Kind = iota + 1
	ReceiverUnavailable
	ProxyServerError
	ProxyNotImplemented
	Invalid
	Required
	Exception
	Transient
	NotSupported
	Structure
)

type definition struct {
	system    string
	code      string
	display   string
	issueType fhir.IssueType
}

func (k Kind) definition() definition {
	switch k {
	case SenderBadRequest:
		return definition{HTTPErrorCodeSystem, "SEND_BAD_REQUEST", "400: The Receiver was unable to process the request.", fhir.IssueTypeInvalid}
	case ReceiverUnavailable:
		return definition{HTTPErrorCodeSystem, "REC_UNAVAILABLE", "503: The Receiver is currently unavailable.", fhir.IssueTypeTransient}
	case ProxyServerError:
		return definition{HTTPErrorCodeSystem, "PROXY_SERVER_ERROR", "500: The Proxy has encountered an error processing the request.", fhir.IssueTypeException}
	case ProxyNotImplemented:
		return definition{HTTPErrorCodeSystem, "PROXY_NOT_IMPLEMENTED", "501: The Proxy has not implemented this request.", fhir.IssueTypeNotSupported}
	case Invalid:
		return definition{IssueTypeSystem, "invalid", "Invalid Content", fhir.IssueTypeInvalid}
	case Required:
		return definition{IssueTypeSystem, "required", "Required element missing", fhir.IssueTypeRequired}
	case Exception:
		return definition{IssueTypeSystem, "exception", "Exception", fhir.IssueTypeException}
	case Transient:
		return definition{IssueTypeSystem, "transient", "Transient Issue", fhir.IssueTypeTransient}
	case NotSupported:
		return definition{IssueTypeSystem, "not-supported", "Content not supported", fhir.IssueTypeNotSupported}
	case Structure:
		return definition{IssueTypeSystem, "structure", "Structural Issue", fhir.IssueTypeStructure}
	}
	return definition{HTTPErrorCodeSystem, "PROXY_SERVER_ERROR", "500: The Proxy has encountered an error processing the request.", fhir.IssueTypeException}
}

// System returns the coding system of the error code.
func (k Kind) System() string {
	return k.definition().system
}

// Code returns the error code, e.g. "REC_UNAVAILABLE" or "required".
func (k Kind) Code() string {
	return k.definition().code
}

func (k Kind) Display() string {
	return k.definition().display
}

// IssueType returns the FHIR OperationOutcome.issue.code for this kind.
func (k Kind) IssueType() fhir.IssueType {
	return k.definition().issueType
}

func (k Kind) String() string {
	return k.Code()
}

// Error is a single reportable error: a kind plus free-text diagnostics.
type Error struct {
	Kind        Kind
	Diagnostics string
}

func New(kind Kind, diagnostics string) Error {
	return Error{Kind: kind, Diagnostics: diagnostics}
}

func (e Error) Error() string {
	if e.Diagnostics == "" {
		return e.Kind.Code()
	}
	return e.Kind.Code() + ": " + e.Diagnostics
}

// Issue converts the error into an OperationOutcome issue.
func (e Error) Issue() fhir.OperationOutcomeIssue {
	def := e.Kind.definition()
	return fhir.OperationOutcomeIssue{
		Severity: fhir.IssueSeverityError,
		Code:     def.issueType,
		Details: &fhir.CodeableConcept{
			Coding: []fhir.Coding{
				{
					System:  to.Ptr(def.system),
					Code:    to.Ptr(def.code),
					Display: to.Ptr(def.display),
				},
			},
		},
		Diagnostics: to.NilString(e.Diagnostics),
	}
}

// Outcome builds an OperationOutcome with one issue per error.
func Outcome(errs ...Error) fhir.OperationOutcome {
	result := fhir.OperationOutcome{}
	for _, err := range errs {
		result.Issue = append(result.Issue, err.Issue())
	}
	return result
}
