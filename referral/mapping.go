package referral

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir"
	"github.com/dhcw/wpas-referral-proxy/wpas"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"golang.org/x/text/cases"
)

// unknownSex is sent to WPAS when the Patient has no gender.
const unknownSex = "U"

// wpasDateLayout is the date format of WPAS.
const wpasDateLayout = "20060102"

// dateLayouts are the date and date/time representations accepted in referral messages.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
	"02/01/2006",
	wpasDateLayout,
}

// Mapper maps referral messages to WPAS requests. Its output only depends on the message and its configuration.
type Mapper struct {
	config           wpas.MappingConfig
	referralIDSystem string
}

func NewMapper(config wpas.MappingConfig, referralIDSystem string) Mapper {
	return Mapper{
		config:           config,
		referralIDSystem: referralIDSystem,
	}
}

// MapCreate maps a validated create referral message to a WPAS create referral request.
// It fails if a resource is missing or an Organization can't be found by its name.
func (m Mapper) MapCreate(message *Message) (wpas.CreateReferralRequest, error) {
	if message.ServiceRequest == nil || message.Patient == nil {
		return wpas.CreateReferralRequest{}, errors.New("message has no ServiceRequest or Patient")
	}
	serviceRequest := message.ServiceRequest.Value
	patient := message.Patient.Value
	receivingOrganisation, err := m.organisationCode(message, m.config.ReceivingOrganisationName)
	if err != nil {
		return wpas.CreateReferralRequest{}, err
	}
	referringOrganisation, err := m.organisationCode(message, m.config.SenderOrganisationName)
	if err != nil {
		return wpas.CreateReferralRequest{}, err
	}
	var dateOnWaitingList string
	if serviceRequest.OccurrencePeriod != nil {
		dateOnWaitingList = formatDate(serviceRequest.OccurrencePeriod.Start)
	}
	return wpas.CreateReferralRequest{
		ExternalReference:         externalReference(serviceRequest),
		NHSNumber:                 message.NHSNumber(),
		PatientName:               patientName(patient.Name),
		BirthDate:                 formatDate(patient.BirthDate),
		Sex:                       sex(message.Patient),
		PostCode:                  postCode(patient.Address),
		ReferringOrganisationCode: referringOrganisation,
		ReceivingOrganisationCode: receivingOrganisation,
		MainSpecialty:             m.config.MainSpecialty,
		ReferrerPriority:          m.config.ReferrerPriority,
		ReferralSource:            m.config.ReferralSource,
		WaitingListType:           m.config.WaitingListType,
		ReferralDate:              formatDate(serviceRequest.AuthoredOn),
		DateOnWaitingList:         dateOnWaitingList,
		ReasonForReferral:         truncate(reasonForReferral(serviceRequest.ReasonCode), m.config.ReasonForReferralMaxLength),
	}, nil
}

// MapCancel maps a validated cancel referral message to a WPAS cancel referral request.
// The ServiceRequest must carry the WPAS referral ID that was returned when the referral was created.
func (m Mapper) MapCancel(message *Message) (wpas.CancelReferralRequest, error) {
	if message.ServiceRequest == nil {
		return wpas.CancelReferralRequest{}, errors.New("message has no ServiceRequest")
	}
	identifier := coolfhir.FirstIdentifier(message.ServiceRequest.Value.Identifier, coolfhir.FilterNamingSystem(m.referralIDSystem))
	if identifier == nil || identifier.Value == nil || strings.TrimSpace(*identifier.Value) == "" {
		return wpas.CancelReferralRequest{}, fmt.Errorf("ServiceRequest has no identifier with system %s", m.referralIDSystem)
	}
	return wpas.CancelReferralRequest{
		ReferralID:         strings.TrimSpace(*identifier.Value),
		NHSNumber:          message.NHSNumber(),
		CancellationReason: message.ServiceRequestStatus(),
		CancellationDate:   formatDate(message.Bundle.Timestamp),
	}, nil
}

// organisationCode returns the ODS code of the first Organization with the given name (case-insensitive).
func (m Mapper) organisationCode(message *Message, name string) (string, error) {
	folder := cases.Fold()
	wanted := folder.String(strings.TrimSpace(name))
	for _, organization := range message.Organizations {
		if organization.Name == nil || folder.String(strings.TrimSpace(*organization.Name)) != wanted {
			continue
		}
		identifier := coolfhir.FirstIdentifier(organization.Identifier, coolfhir.FilterNamingSystem(coolfhir.ODSOrganizationCodeSystem))
		if identifier == nil || identifier.Value == nil {
			return "", fmt.Errorf("Organization '%s' has no ODS code", name)
		}
		return strings.TrimSpace(*identifier.Value), nil
	}
	return "", fmt.Errorf("Organization '%s' not found", name)
}

// externalReference returns the value of the ServiceRequest's first identifier, which is the sender's referral number.
func externalReference(serviceRequest fhir.ServiceRequest) string {
	if len(serviceRequest.Identifier) == 0 || serviceRequest.Identifier[0].Value == nil {
		return ""
	}
	return strings.TrimSpace(*serviceRequest.Identifier[0].Value)
}

func patientName(names []fhir.HumanName) wpas.PatientName {
	if len(names) == 0 {
		return wpas.PatientName{}
	}
	name := names[0]
	for _, candidate := range names {
		if candidate.Use != nil && *candidate.Use == fhir.NameUseOfficial {
			name = candidate
			break
		}
	}
	var result wpas.PatientName
	if name.Family != nil {
		result.Surname = strings.TrimSpace(*name.Family)
	}
	if len(name.Given) > 0 {
		result.FirstName = strings.TrimSpace(name.Given[0])
	}
	return result
}

// sex returns the first letter of the Patient's gender, upper-cased.
func sex(patient *Resource[fhir.Patient]) string {
	if !patient.Has("gender") || patient.Value.Gender == nil {
		return unknownSex
	}
	code := patient.Value.Gender.Code()
	r, size := utf8.DecodeRuneInString(code)
	if size == 0 {
		return unknownSex
	}
	return strings.ToUpper(string(r))
}

func postCode(addresses []fhir.Address) string {
	for _, address := range addresses {
		if address.PostalCode != nil {
			return strings.TrimSpace(*address.PostalCode)
		}
	}
	return ""
}

// reasonForReferral returns the text of the first reason code, or the display of its first coding.
func reasonForReferral(reasons []fhir.CodeableConcept) string {
	for _, reason := range reasons {
		if reason.Text != nil && strings.TrimSpace(*reason.Text) != "" {
			return *reason.Text
		}
		for _, coding := range reason.Coding {
			if coding.Display != nil && strings.TrimSpace(*coding.Display) != "" {
				return *coding.Display
			}
		}
	}
	return ""
}

// truncate trims the text and cuts it off after maxLength characters.
func truncate(text string, maxLength int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	return string([]rune(text)[:maxLength])
}

// formatDate renders the date in WPAS format. Absent or unparseable dates become an empty string.
func formatDate(value *string) string {
	if value == nil {
		return ""
	}
	text := strings.TrimSpace(*value)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return parsed.Format(wpasDateLayout)
		}
	}
	return ""
}
