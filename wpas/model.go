package wpas

import "strings"

// CreateReferralRequest is the payload of the WPAS create referral operation.
// Dates are formatted as yyyyMMdd; absent or unparseable dates are sent as an empty string.
type CreateReferralRequest struct {
	// ExternalReference is the sender's identifier of the referral (ServiceRequest.identifier).
	ExternalReference         string      `json:"externalReference"`
	NHSNumber                 string      `json:"nhsNumber"`
	PatientName               PatientName `json:"patientName"`
	BirthDate                 string      `json:"birthDate"`
	Sex                       string      `json:"sex"`
	PostCode                  string      `json:"postCode"`
	ReferringOrganisationCode string      `json:"referringOrganisationCode"`
	ReceivingOrganisationCode string      `json:"receivingOrganisationCode"`
	MainSpecialty             string      `json:"mainSpecialty"`
	ReferrerPriority          string      `json:"referrerPriority"`
	ReferralSource            string      `json:"referralSource"`
	WaitingListType           string      `json:"waitingListType"`
	ReferralDate              string      `json:"referralDate"`
	DateOnWaitingList         string      `json:"dateOnWaitingList"`
	ReasonForReferral         string      `json:"reasonForReferral"`
}

type PatientName struct {
	Surname   string `json:"surname"`
	FirstName string `json:"firstName"`
}

// CancelReferralRequest is the payload of the WPAS cancel referral operation.
type CancelReferralRequest struct {
	ReferralID         string `json:"referralId"`
	NHSNumber          string `json:"nhsNumber"`
	CancellationReason string `json:"cancellationReason"`
	CancellationDate   string `json:"cancellationDate"`
}

// ReferralResponse is returned by WPAS when a referral was created, cancelled or looked up.
type ReferralResponse struct {
	ReferralID                string `json:"referralId"`
	NHSNumber                 string `json:"nhsNumber,omitempty"`
	Status                    string `json:"status,omitempty"`
	CreatedAt                 string `json:"createdAt,omitempty"`
	UpdatedAt                 string `json:"updatedAt,omitempty"`
	ReferringOrganisationCode string `json:"referringOrganisationCode,omitempty"`
	ReceivingOrganisationCode string `json:"receivingOrganisationCode,omitempty"`
	MainSpecialty             string `json:"mainSpecialty,omitempty"`
}

const (
	ReferralStatusOpen      = "OPEN"
	ReferralStatusCancelled = "CANCELLED"
)

// Problem is the RFC 7807 problem details document WPAS returns on failure.
type Problem struct {
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Status   int    `json:"status,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func (p Problem) String() string {
	parts := make([]string, 0, 2)
	if p.Title != "" {
		parts = append(parts, p.Title)
	}
	if p.Detail != "" {
		parts = append(parts, p.Detail)
	}
	return strings.Join(parts, ": ")
}
