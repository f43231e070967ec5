package referral

import (
	"testing"

	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMandatoryDataValidator_Create(t *testing.T) {
	validator := NewMandatoryDataValidator(ActionCreate)

	t.Run("complete", func(t *testing.T) {
		outcome := validator.Validate(parse(t, createBundle(t)))

		assert.True(t, outcome.IsSuccessful())
	})
	t.Run("missing fields are all reported", func(t *testing.T) {
		data := editResource(t, createBundle(t), "Patient", func(resource map[string]any) {
			delete(resource, "birthDate")
			delete(resource, "gender")
		})
		data = editResource(t, data, "ServiceRequest", func(resource map[string]any) {
			delete(resource, "encounter")
			resource["category"] = []any{}
		})
		data = editResource(t, data, "MessageHeader", func(resource map[string]any) {
			delete(resource, "eventCoding")
		})

		outcome := validator.Validate(parse(t, data))

		assert.Equal(t, []string{
			"MessageHeader.event is required",
			"ServiceRequest.encounter is required",
			"ServiceRequest.category is required",
			"Patient.birthDate is required",
			"Patient.gender is required",
		}, outcome.Messages())
		for _, err := range outcome.Errors {
			assert.Equal(t, fhirerr.Required, err.Kind)
		}
	})
	t.Run("eventUri satisfies event", func(t *testing.T) {
		data := editResource(t, createBundle(t), "MessageHeader", func(resource map[string]any) {
			delete(resource, "eventCoding")
			resource["eventUri"] = "https://fhir.nhs.uk/CodeSystem/message-events-bars#servicerequest-request"
		})

		outcome := validator.Validate(parse(t, data))

		assert.True(t, outcome.IsSuccessful())
	})
	t.Run("missing resources", func(t *testing.T) {
		data := removeResources(t, createBundle(t), "Encounter")
		data = removeResources(t, data, "CarePlan")

		outcome := validator.Validate(parse(t, data))

		assert.Equal(t, []string{"Bundle.Encounter is required", "Bundle.CarePlan is required"}, outcome.Messages())
	})
	t.Run("Patient without NHS number", func(t *testing.T) {
		data := editResource(t, createBundle(t), "Patient", func(resource map[string]any) {
			resource["identifier"] = []any{map[string]any{"system": "https://example.com/mrn", "value": "123"}}
		})

		outcome := validator.Validate(parse(t, data))

		assert.Equal(t, []string{"Patient.identifier is required"}, outcome.Messages())
	})
	t.Run("ServiceRequest without identifier value", func(t *testing.T) {
		for name, identifier := range map[string]any{
			"absent":      nil,
			"no value":    []any{map[string]any{"system": "https://fhir.nhs.uk/Id/UBRN"}},
			"blank value": []any{map[string]any{"system": "https://fhir.nhs.uk/Id/UBRN", "value": " "}},
		} {
			t.Run(name, func(t *testing.T) {
				data := editResource(t, createBundle(t), "ServiceRequest", func(resource map[string]any) {
					if identifier == nil {
						delete(resource, "identifier")
					} else {
						resource["identifier"] = identifier
					}
				})

				outcome := validator.Validate(parse(t, data))

				assert.Equal(t, []string{"ServiceRequest.identifier is required"}, outcome.Messages())
			})
		}
	})
	t.Run("Patient name parts", func(t *testing.T) {
		type testCase struct {
			name     string
			value    any
			expected []string
		}
		tests := []testCase{
			{
				name:     "no given name",
				value:    []any{map[string]any{"family": "Jones"}},
				expected: []string{"Patient.name.given is required"},
			},
			{
				name:     "no family name",
				value:    []any{map[string]any{"given": []any{"Julie"}}},
				expected: []string{"Patient.name.family is required"},
			},
			{
				name: "official name is used",
				value: []any{
					map[string]any{"family": "Jones", "given": []any{"Julie"}},
					map[string]any{"use": "official", "family": "Jones"},
				},
				expected: []string{"Patient.name.given is required"},
			},
			{
				name:     "absent",
				expected: []string{"Patient.name is required"},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				data := editResource(t, createBundle(t), "Patient", func(resource map[string]any) {
					if tt.value == nil {
						delete(resource, "name")
					} else {
						resource["name"] = tt.value
					}
				})

				outcome := validator.Validate(parse(t, data))

				assert.Equal(t, tt.expected, outcome.Messages())
			})
		}
	})
	t.Run("empty message", func(t *testing.T) {
		outcome := validator.Validate(parse(t, []byte(`{"resourceType":"Bundle","type":"message"}`)))

		assert.Equal(t, []string{
			"Bundle.MessageHeader is required",
			"Bundle.ServiceRequest is required",
			"Bundle.Encounter is required",
			"Bundle.CarePlan is required",
			"Bundle.HealthcareService is required",
			"Bundle.Patient is required",
		}, outcome.Messages())
	})
}

func TestMandatoryDataValidator_Cancel(t *testing.T) {
	validator := NewMandatoryDataValidator(ActionCancel)

	t.Run("complete", func(t *testing.T) {
		outcome := validator.Validate(parse(t, cancelBundle(t, "REF-1")))

		assert.True(t, outcome.IsSuccessful())
	})
	t.Run("Encounter is not needed", func(t *testing.T) {
		data := removeResources(t, cancelBundle(t, "REF-1"), "Encounter")

		outcome := validator.Validate(parse(t, data))

		assert.True(t, outcome.IsSuccessful())
	})
	t.Run("missing fields", func(t *testing.T) {
		data := editResource(t, cancelBundle(t, "REF-1"), "ServiceRequest", func(resource map[string]any) {
			delete(resource, "identifier")
			delete(resource, "intent")
		})

		outcome := validator.Validate(parse(t, data))

		require.Len(t, outcome.Errors, 2)
		assert.Equal(t, []string{"ServiceRequest.intent is required", "ServiceRequest.identifier is required"}, outcome.Messages())
	})
}
