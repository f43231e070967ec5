package otel

// Common attribute keys used across services
const (
	HTTPMethod     = "http.method"
	HTTPURL        = "http.url"
	HTTPStatusCode = "http.status_code"

	FHIRResourceType     = "fhir.resource_type"
	FHIRResourceID       = "fhir.resource_id"
	FHIRBundleType       = "fhir.bundle.type"
	FHIRBundleEntryCount = "fhir.bundle.entry_count"

	ReferralWorkflow      = "referral.workflow"
	ReferralID            = "referral.id"
	ReferralRequestID     = "referral.request_id"
	ReferralCorrelationID = "referral.correlation_id"

	ValidationResult     = "validation.result"
	ValidationIssueCount = "validation.issue_count"

	BackendOperation = "wpas.operation"
	ErrorCategory    = "error.category"
)
