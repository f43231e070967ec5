package coolfhir

// FHIRContentType is the content-type for FHIR payloads
const FHIRContentType = "application/fhir+json"

// NHSNumberSystem is the identifier system of the NHS number.
const NHSNumberSystem = "https://fhir.nhs.uk/Id/nhs-number"

// ODSOrganizationCodeSystem is the identifier system of ODS organisation codes.
const ODSOrganizationCodeSystem = "https://fhir.nhs.uk/Id/ods-organization-code"

// MessageReasonSystem is the BaRS code system of MessageHeader.reason, which distinguishes new referrals from updates.
const MessageReasonSystem = "https://fhir.nhs.uk/CodeSystem/message-reason-bars"

const (
	MessageReasonNew    = "new"
	MessageReasonUpdate = "update"
)

const AcceptHeader = "Accept"
