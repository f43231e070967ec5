package referral

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir"
	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

// Message is a parsed referral message Bundle, with the resources the referral workflows need.
// If the Bundle holds more than one resource of a singular type (e.g. ServiceRequest), the first one is used.
type Message struct {
	Raw               []byte
	Bundle            fhir.Bundle
	MessageHeader     *Resource[MessageHeader]
	ServiceRequest    *Resource[fhir.ServiceRequest]
	Patient           *Resource[fhir.Patient]
	Encounter         *Resource[fhir.Encounter]
	CarePlan          *Resource[fhir.CarePlan]
	HealthcareService *Resource[fhir.HealthcareService]
	Organizations     []fhir.Organization
	Practitioners     []fhir.Practitioner
	Conditions        []fhir.Condition
}

// Resource is a resource from the Bundle, together with the top-level elements present in its JSON.
// Coded elements decode to a zero value when absent, so presence is determined from the JSON.
type Resource[T any] struct {
	Value    T
	elements map[string]json.RawMessage
}

// Has reports whether the element is present and not empty.
func (r *Resource[T]) Has(element string) bool {
	if r == nil {
		return false
	}
	raw, ok := r.elements[element]
	if !ok {
		return false
	}
	switch strings.TrimSpace(string(raw)) {
	case "", "null", `""`, "[]", "{}":
		return false
	}
	return true
}

// text returns the element's string value, or its raw JSON if it isn't a string.
func (r *Resource[T]) text(element string) string {
	raw := r.elements[element]
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return string(raw)
	}
	return value
}

// MessageHeader is the FHIR R4 MessageHeader, limited to the elements referral messages use.
type MessageHeader struct {
	ID          *string                    `json:"id,omitempty"`
	Meta        *fhir.Meta                 `json:"meta,omitempty"`
	EventCoding *fhir.Coding               `json:"eventCoding,omitempty"`
	EventURI    *string                    `json:"eventUri,omitempty"`
	Destination []MessageHeaderDestination `json:"destination,omitempty"`
	Sender      *fhir.Reference            `json:"sender,omitempty"`
	Source      *MessageHeaderSource       `json:"source,omitempty"`
	Reason      *fhir.CodeableConcept      `json:"reason,omitempty"`
	Focus       []fhir.Reference           `json:"focus,omitempty"`
	Definition  *string                    `json:"definition,omitempty"`
}

type MessageHeaderDestination struct {
	Name     *string         `json:"name,omitempty"`
	Endpoint string          `json:"endpoint"`
	Receiver *fhir.Reference `json:"receiver,omitempty"`
}

type MessageHeaderSource struct {
	Name     *string `json:"name,omitempty"`
	Software *string `json:"software,omitempty"`
	Endpoint string  `json:"endpoint"`
}

// ParseMessage parses a referral message Bundle.
// Malformed JSON yields a fhirerr.DeserializationError, a Bundle that isn't a message a fhirerr.BundleValidationError.
// Missing resources are not an error here, they're reported by the mandatory data validation.
func ParseMessage(data []byte) (*Message, error) {
	bundle, err := parseResource[fhir.Bundle](data)
	if err != nil {
		return nil, fhirerr.DeserializationError{Cause: err}
	}
	var header coolfhir.Resource
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fhirerr.DeserializationError{Cause: err}
	}
	if header.Type != "Bundle" {
		return nil, fhirerr.NewBundleValidationError("Expected a Bundle, got '%s'", header.Type)
	}
	if !bundle.Has("type") || bundle.Value.Type != fhir.BundleTypeMessage {
		return nil, fhirerr.NewBundleValidationError("Bundle.type must be 'message'")
	}
	message := &Message{
		Raw:    data,
		Bundle: bundle.Value,
	}
	for i, entry := range bundle.Value.Entry {
		var resource coolfhir.Resource
		if len(entry.Resource) == 0 || json.Unmarshal(entry.Resource, &resource) != nil {
			return nil, fhirerr.DeserializationError{Cause: fmt.Errorf("Bundle.entry[%d] has no valid resource", i)}
		}
		if err := message.add(resource.Type, entry.Resource); err != nil {
			return nil, fhirerr.DeserializationError{Cause: fmt.Errorf("Bundle.entry[%d] (%s): %w", i, resource.Type, err)}
		}
	}
	return message, nil
}

func (m *Message) add(resourceType string, data json.RawMessage) error {
	var err error
	switch resourceType {
	case "MessageHeader":
		err = setFirst(&m.MessageHeader, data)
	case "ServiceRequest":
		if m.ServiceRequest == nil {
			m.ServiceRequest, err = parseServiceRequest(data)
		}
	case "Patient":
		err = setFirst(&m.Patient, data)
	case "Encounter":
		err = setFirst(&m.Encounter, data)
	case "CarePlan":
		err = setFirst(&m.CarePlan, data)
	case "HealthcareService":
		err = setFirst(&m.HealthcareService, data)
	case "Organization":
		err = appendTo(&m.Organizations, data)
	case "Practitioner":
		err = appendTo(&m.Practitioners, data)
	case "Condition":
		err = appendTo(&m.Conditions, data)
	}
	return err
}

// ReasonCode returns the code of MessageHeader.reason in the message reason code system, or an empty string.
func (m *Message) ReasonCode() string {
	if m.MessageHeader == nil {
		return ""
	}
	coding := coolfhir.FirstCoding(m.MessageHeader.Value.Reason, coolfhir.MessageReasonSystem)
	if coding == nil || coding.Code == nil {
		return ""
	}
	return strings.TrimSpace(*coding.Code)
}

// ServiceRequestStatus returns the ServiceRequest.status code, or an empty string if it's absent.
func (m *Message) ServiceRequestStatus() string {
	if !m.ServiceRequest.Has("status") {
		return ""
	}
	return m.ServiceRequest.text("status")
}

// NHSNumber returns the Patient's NHS number, or an empty string.
func (m *Message) NHSNumber() string {
	if m.Patient == nil {
		return ""
	}
	identifier := coolfhir.FirstIdentifier(m.Patient.Value.Identifier, coolfhir.FilterNamingSystem(coolfhir.NHSNumberSystem))
	if identifier == nil || identifier.Value == nil {
		return ""
	}
	return strings.TrimSpace(*identifier.Value)
}

func setFirst[T any](target **Resource[T], data json.RawMessage) error {
	if *target != nil {
		return nil
	}
	resource, err := parseResource[T](data)
	if err != nil {
		return err
	}
	*target = resource
	return nil
}

func appendTo[T any](target *[]T, data json.RawMessage) error {
	var resource T
	if err := json.Unmarshal(data, &resource); err != nil {
		return err
	}
	*target = append(*target, resource)
	return nil
}

func parseResource[T any](data []byte) (*Resource[T], error) {
	result := &Resource[T]{}
	if err := json.Unmarshal(data, &result.elements); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &result.Value); err != nil {
		return nil, err
	}
	return result, nil
}

// parseServiceRequest parses a ServiceRequest whose status may be outside the FHIR value set.
// Such a status is left out of the typed value but kept in the elements, so the workflow router can reject it.
func parseServiceRequest(data []byte) (*Resource[fhir.ServiceRequest], error) {
	result := &Resource[fhir.ServiceRequest]{}
	if err := json.Unmarshal(data, &result.elements); err != nil {
		return nil, err
	}
	value := data
	if raw, ok := result.elements["status"]; ok {
		var status fhir.RequestStatus
		if json.Unmarshal(raw, &status) != nil {
			withoutStatus := maps.Clone(result.elements)
			delete(withoutStatus, "status")
			var err error
			if value, err = json.Marshal(withoutStatus); err != nil {
				return nil, err
			}
		}
	}
	if err := json.Unmarshal(value, &result.Value); err != nil {
		return nil, err
	}
	return result, nil
}
