package referral

import (
	"fmt"

	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/dhcw/wpas-referral-proxy/lib/validation"
)

var _ validation.Validator[*Message] = MandatoryDataValidator{}

// MandatoryDataValidator checks that a message holds the resources and elements its workflow needs.
// All rules are evaluated, so the sender receives every missing element at once.
type MandatoryDataValidator struct {
	rules []resourceRule
}

// NewMandatoryDataValidator returns the validator for the given workflow.
func NewMandatoryDataValidator(action Action) MandatoryDataValidator {
	if action == ActionCancel {
		return MandatoryDataValidator{rules: cancelRules}
	}
	return MandatoryDataValidator{rules: createRules}
}

func (v MandatoryDataValidator) Validate(message *Message) validation.Outcome {
	var outcome validation.Outcome
	for _, rule := range v.rules {
		resource := rule.resource(message)
		if resource == nil {
			outcome.Add(fhirerr.Required, fmt.Sprintf("Bundle.%s is required", rule.resourceType))
			continue
		}
		for _, field := range rule.fields {
			if !field.satisfied(message, resource) {
				outcome.Add(fhirerr.Required, fmt.Sprintf("%s.%s is required", rule.resourceType, field.name))
			}
		}
	}
	return outcome
}

type elementSet interface {
	Has(element string) bool
}

type resourceRule struct {
	resourceType string
	resource     func(m *Message) elementSet
	fields       []fieldRule
}

type fieldRule struct {
	name string
	// elements lists the JSON elements of which at least one must be present. Defaults to name.
	elements []string
	// check replaces the presence check, if set.
	check func(m *Message) bool
}

func (f fieldRule) satisfied(message *Message, resource elementSet) bool {
	if f.check != nil {
		return f.check(message)
	}
	if len(f.elements) == 0 {
		return resource.Has(f.name)
	}
	for _, element := range f.elements {
		if resource.Has(element) {
			return true
		}
	}
	return false
}

func fields(names ...string) []fieldRule {
	result := make([]fieldRule, 0, len(names))
	for _, name := range names {
		result = append(result, fieldRule{name: name})
	}
	return result
}

func concat(rules ...[]fieldRule) []fieldRule {
	var result []fieldRule
	for _, r := range rules {
		result = append(result, r...)
	}
	return result
}

func present[T any](resource *Resource[T]) elementSet {
	if resource == nil {
		return nil
	}
	return resource
}

var messageHeaderFields = []fieldRule{
	{name: "definition"},
	{name: "meta"},
	{name: "destination"},
	{name: "sender"},
	{name: "source"},
	{name: "event", elements: []string{"eventCoding", "eventUri"}},
	{name: "reason"},
	{name: "focus"},
}

var patientIdentifier = fieldRule{
	name: "identifier",
	check: func(m *Message) bool {
		return m.NHSNumber() != ""
	},
}

// serviceRequestIdentifier requires the identifier that becomes the WPAS external reference.
var serviceRequestIdentifier = fieldRule{
	name: "identifier",
	check: func(m *Message) bool {
		return externalReference(m.ServiceRequest.Value) != ""
	},
}

// patientNameFields require the parts of the Patient's name that are sent to WPAS.
// They're only reported when the name itself is present.
var patientNameFields = []fieldRule{
	{name: "name"},
	{
		name: "name.family",
		check: func(m *Message) bool {
			return !m.Patient.Has("name") || patientName(m.Patient.Value.Name).Surname != ""
		},
	},
	{
		name: "name.given",
		check: func(m *Message) bool {
			return !m.Patient.Has("name") || patientName(m.Patient.Value.Name).FirstName != ""
		},
	},
}

var createRules = []resourceRule{
	{
		resourceType: "MessageHeader",
		resource:     func(m *Message) elementSet { return present(m.MessageHeader) },
		fields:       messageHeaderFields,
	},
	{
		resourceType: "ServiceRequest",
		resource:     func(m *Message) elementSet { return present(m.ServiceRequest) },
		fields:       append(fields("status", "intent", "subject", "encounter", "authoredOn", "basedOn", "occurrencePeriod", "requester", "performer", "category", "meta"), serviceRequestIdentifier),
	},
	{
		resourceType: "Encounter",
		resource:     func(m *Message) elementSet { return present(m.Encounter) },
		fields:       fields("status", "class", "subject"),
	},
	{
		resourceType: "CarePlan",
		resource:     func(m *Message) elementSet { return present(m.CarePlan) },
		fields:       fields("status", "intent", "subject"),
	},
	{
		resourceType: "HealthcareService",
		resource:     func(m *Message) elementSet { return present(m.HealthcareService) },
		fields:       fields("identifier", "name"),
	},
	{
		resourceType: "Patient",
		resource:     func(m *Message) elementSet { return present(m.Patient) },
		fields:       concat([]fieldRule{patientIdentifier}, patientNameFields, fields("birthDate", "gender", "address")),
	},
}

var cancelRules = []resourceRule{
	{
		resourceType: "MessageHeader",
		resource:     func(m *Message) elementSet { return present(m.MessageHeader) },
		fields:       messageHeaderFields,
	},
	{
		resourceType: "ServiceRequest",
		resource:     func(m *Message) elementSet { return present(m.ServiceRequest) },
		fields:       fields("status", "intent", "subject", "identifier", "meta"),
	},
	{
		resourceType: "Patient",
		resource:     func(m *Message) elementSet { return present(m.Patient) },
		fields:       []fieldRule{patientIdentifier},
	},
}
