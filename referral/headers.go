package referral

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir"
	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/dhcw/wpas-referral-proxy/lib/httpserv"
	"github.com/dhcw/wpas-referral-proxy/lib/validation"
	"github.com/google/uuid"
	"github.com/segmentio/asm/base64"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
)

const (
	TargetIdentifierHeader    = "NHSD-Target-Identifier"
	EndUserOrganisationHeader = "NHSD-End-User-Organisation"
	RequestingSoftwareHeader  = "NHSD-Requesting-Software"
	UseContextHeader          = "use-context"
)

var useContextPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

type HeaderConfig struct {
	// AcceptVersion is the version parameter the Accept header must carry.
	AcceptVersion string `koanf:"acceptversion"`
}

func DefaultHeaderConfig() HeaderConfig {
	return HeaderConfig{
		AcceptVersion: "1.0.0",
	}
}

var _ validation.Validator[http.Header] = HeaderValidator{}

// HeaderValidator validates the transport headers of referral requests.
// Validation of a header stops at its first violated rule; all headers are validated.
type HeaderValidator struct {
	rules []headerRule
}

type headerRule struct {
	name   string
	checks []headerCheck
}

// headerCheck returns a description of the violation, or an empty string if the value is valid.
type headerCheck func(name string, value string) string

func NewHeaderValidator(config HeaderConfig) HeaderValidator {
	return HeaderValidator{
		rules: []headerRule{
			{name: TargetIdentifierHeader, checks: []headerCheck{encodedIdentifier}},
			{name: EndUserOrganisationHeader, checks: []headerCheck{encodedResource[fhir.Organization]("Organization")}},
			{name: RequestingSoftwareHeader, checks: []headerCheck{encodedResource[fhir.Device]("Device")}},
			{name: httpserv.RequestIDHeader, checks: []headerCheck{guid}},
			{name: httpserv.CorrelationIDHeader, checks: []headerCheck{guid}},
			{name: UseContextHeader, checks: []headerCheck{useContext}},
			{name: coolfhir.AcceptHeader, checks: []headerCheck{accept(config.AcceptVersion)}},
		},
	}
}

func (v HeaderValidator) Validate(header http.Header) validation.Outcome {
	var outcome validation.Outcome
	for _, rule := range v.rules {
		value := strings.TrimSpace(header.Get(rule.name))
		if value == "" {
			outcome.Add(fhirerr.Required, fmt.Sprintf("Header '%s' is required", rule.name))
			continue
		}
		for _, check := range rule.checks {
			if violation := check(rule.name, value); violation != "" {
				outcome.Add(fhirerr.Invalid, violation)
				break
			}
		}
	}
	return outcome
}

func decode(name string, value string) ([]byte, string) {
	data, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Sprintf("Header '%s' is not valid base64", name)
	}
	return data, ""
}

// encodedIdentifier checks that the value is a base64 encoded FHIR Identifier with a value.
func encodedIdentifier(name string, value string) string {
	data, violation := decode(name, value)
	if violation != "" {
		return violation
	}
	var identifier fhir.Identifier
	if err := json.Unmarshal(data, &identifier); err != nil || identifier.Value == nil || *identifier.Value == "" {
		return fmt.Sprintf("Header '%s' must be a base64 encoded FHIR Identifier", name)
	}
	return ""
}

// encodedResource checks that the value is a base64 encoded FHIR resource of the given type.
func encodedResource[T any](resourceType string) headerCheck {
	return func(name string, value string) string {
		data, violation := decode(name, value)
		if violation != "" {
			return violation
		}
		invalid := fmt.Sprintf("Header '%s' must be a base64 encoded FHIR %s", name, resourceType)
		var resource coolfhir.Resource
		if err := json.Unmarshal(data, &resource); err != nil || resource.Type != resourceType {
			return invalid
		}
		var typed T
		if err := json.Unmarshal(data, &typed); err != nil {
			return invalid
		}
		return ""
	}
}

func guid(name string, value string) string {
	if _, err := uuid.Parse(value); err != nil {
		return fmt.Sprintf("Header '%s' must be a GUID", name)
	}
	return ""
}

func useContext(name string, value string) string {
	if !useContextPattern.MatchString(value) {
		return fmt.Sprintf("Header '%s' may only contain letters, digits and hyphens", name)
	}
	return ""
}

// accept checks that the value consists of exactly the FHIR JSON media type and the version parameter, in any order.
func accept(version string) headerCheck {
	expected := []string{coolfhir.FHIRContentType, "version=" + strings.ToLower(version)}
	return func(name string, value string) string {
		parts := strings.Split(value, ";")
		if len(parts) == 2 {
			first := strings.ToLower(strings.TrimSpace(parts[0]))
			second := strings.ToLower(strings.TrimSpace(parts[1]))
			if (first == expected[0] && second == expected[1]) || (first == expected[1] && second == expected[0]) {
				return ""
			}
		}
		return fmt.Sprintf("Header '%s' must be '%s; %s'", name, expected[0], expected[1])
	}
}
