package referral

import (
	"fmt"

	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir"
	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// Action is the intent of a referral message.
type Action int

const (
	ActionCreate Action = iota + 1
	ActionCancel
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionCancel:
		return "cancel"
	}
	return fmt.Sprintf("unknown(%d)", int(a))
}

// DetermineAction derives the intent of the message from MessageHeader.reason and ServiceRequest.status:
// a new, active ServiceRequest is created, an update of a revoked or entered-in-error ServiceRequest is cancelled.
// Absent values yield a fhirerr.ParameterValidationError, any other combination a fhirerr.BundleValidationError.
func DetermineAction(message *Message) (Action, error) {
	reason := message.ReasonCode()
	if reason == "" {
		return 0, fhirerr.ParameterValidationError{Message: "MessageHeader.reason is required"}
	}
	status := message.ServiceRequestStatus()
	if status == "" {
		return 0, fhirerr.ParameterValidationError{Message: "ServiceRequest.status is required"}
	}
	switch {
	case reason == coolfhir.MessageReasonNew && status == fhir.RequestStatusActive.Code():
		return ActionCreate, nil
	case reason == coolfhir.MessageReasonUpdate &&
		(status == fhir.RequestStatusRevoked.Code() || status == fhir.RequestStatusEnteredInError.Code()):
		return ActionCancel, nil
	}
	return 0, fhirerr.NewBundleValidationError("Invalid combination of MessageHeader.reason '%s' and ServiceRequest.status '%s'", reason, status)
}
