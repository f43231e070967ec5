package logging

// Common log field keys used throughout the application
const (
	FieldCategory      = "category"
	FieldCorrelationID = "correlation_id"
	FieldCount         = "count"
	FieldDuration      = "duration"
	FieldEvent         = "event"
	FieldPath          = "path"
	FieldReferralID    = "referral_id"
	FieldRequestID     = "request_id"
	FieldResourceType  = "resource_type"
	FieldSpanID        = "span_id"
	FieldStatusCode    = "status_code"
	FieldTraceID       = "trace_id"
	FieldUrl           = "url"
	FieldWorkflow      = "workflow"
)
