//go:generate mockgen -destination=./service_mock.go -package=referral -source=service.go
package referral

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dhcw/wpas-referral-proxy/lib/audit"
	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir"
	"github.com/dhcw/wpas-referral-proxy/lib/fhirerr"
	"github.com/dhcw/wpas-referral-proxy/lib/httpserv"
	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/dhcw/wpas-referral-proxy/lib/otel"
	"github.com/dhcw/wpas-referral-proxy/lib/to"
	"github.com/dhcw/wpas-referral-proxy/lib/validation"
	"github.com/dhcw/wpas-referral-proxy/wpas"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	baseotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName         = "referral"
	ProcessMessagePath = "/$process-message"
	ServiceRequestPath = "/ServiceRequest/{id}"
)

// defaultMaxBodySize is used when Config.MaxBodySize is not set.
const defaultMaxBodySize = 5 << 20

// ProfileValidator validates an inbound Bundle against the FHIR profiles.
type ProfileValidator interface {
	Validate(ctx context.Context, resource []byte) (validation.Outcome, error)
}

// SchemaValidator validates an outbound WPAS request against its JSON schema.
type SchemaValidator interface {
	Validate(schemaName string, payload any) (wpas.SchemaEvaluation, error)
}

type Config struct {
	Headers HeaderConfig
	Mapping wpas.MappingConfig
	// ReferralIDSystem is the identifier system of WPAS referral IDs on ServiceRequests.
	ReferralIDSystem string
	// MaxBodySize is the maximum size of an inbound Bundle in bytes.
	MaxBodySize int64
}

// Service handles the referral messages sent to the proxy and relays them to WPAS.
type Service struct {
	headerValidator  HeaderValidator
	profileValidator ProfileValidator
	mapper           Mapper
	schemaValidator  SchemaValidator
	client           wpas.Client
	auditor          audit.Sink
	referralIDSystem string
	maxBodySize      int64
}

func New(config Config, profileValidator ProfileValidator, schemaValidator SchemaValidator, client wpas.Client, auditor audit.Sink) *Service {
	maxBodySize := config.MaxBodySize
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}
	return &Service{
		headerValidator:  NewHeaderValidator(config.Headers),
		profileValidator: profileValidator,
		mapper:           NewMapper(config.Mapping, config.ReferralIDSystem),
		schemaValidator:  schemaValidator,
		client:           client,
		auditor:          auditor,
		referralIDSystem: config.ReferralIDSystem,
		maxBodySize:      maxBodySize,
	}
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	tracer := baseotel.Tracer(tracerName)
	httpserv.RegisterRoutes(mux,
		httpserv.Route{
			Method:     http.MethodPost,
			Path:       ProcessMessagePath,
			Handler:    s.handleProcessMessage,
			Middleware: httpserv.Chain(httpserv.RequestLogging, httpserv.LimitBody(s.maxBodySize), otel.HandlerWithTracing(tracer, "Referral/ProcessMessage")),
		},
		httpserv.Route{
			Method:     http.MethodGet,
			Path:       ServiceRequestPath,
			Handler:    s.handleGetServiceRequest,
			Middleware: httpserv.Chain(httpserv.RequestLogging, otel.HandlerWithTracing(tracer, "Referral/GetServiceRequest")),
		},
	)
}

func (s *Service) handleProcessMessage(httpResponse http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	headers := echoedHeaders(request)
	s.auditor.Record(ctx, audit.Event{
		Name:       audit.RequestReceived,
		Properties: map[string]string{logging.FieldPath: request.URL.Path},
	})
	bundle, err := s.processMessage(ctx, request)
	if err != nil {
		s.writeError(ctx, err, "Referral/ProcessMessage", httpResponse, headers)
		return
	}
	coolfhir.SendResponse(httpResponse, http.StatusOK, bundle, headers)
	s.recordResponse(ctx, http.StatusOK)
}

// processMessage runs the referral pipeline. Each stage fails fast, except header and mandatory data validation,
// which report every defect.
func (s *Service) processMessage(ctx context.Context, request *http.Request) (*fhir.Bundle, error) {
	span := trace.SpanFromContext(ctx)
	outcome := s.headerValidator.Validate(request.Header)
	s.record(ctx, audit.HeadersValidated, outcome)
	if !outcome.IsSuccessful() {
		return nil, fhirerr.HeaderValidationError{Issues: outcome.Errors}
	}

	body, err := io.ReadAll(request.Body)
	if err != nil {
		return nil, fhirerr.DeserializationError{Cause: err}
	}
	message, err := ParseMessage(body)
	s.auditor.Record(ctx, audit.Event{
		Name:       audit.BundleParsed,
		Failed:     err != nil,
		Properties: map[string]string{logging.FieldCount: strconv.Itoa(len(bundleEntries(message)))},
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(otel.FHIRBundleEntryCount, len(message.Bundle.Entry)))

	action, err := DetermineAction(message)
	s.auditor.Record(ctx, audit.Event{
		Name:       audit.WorkflowDetermined,
		Failed:     err != nil,
		Properties: map[string]string{logging.FieldWorkflow: action.String()},
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(otel.ReferralWorkflow, action.String()))
	ctx = log.Ctx(ctx).With().Str(logging.FieldWorkflow, action.String()).Logger().WithContext(ctx)

	outcome, err = s.profileValidator.Validate(ctx, body)
	if err != nil {
		s.auditor.Record(ctx, audit.Event{Name: audit.ProfileValidated, Failed: true})
		return nil, fmt.Errorf("profile validation: %w", err)
	}
	s.record(ctx, audit.ProfileValidated, outcome)
	if !outcome.IsSuccessful() {
		return nil, fhirerr.ProfileValidationError{Issues: outcome.Errors}
	}

	outcome = NewMandatoryDataValidator(action).Validate(message)
	s.record(ctx, audit.MandatoryDataValidated, outcome)
	if !outcome.IsSuccessful() {
		return nil, fhirerr.BundleValidationError{Issues: outcome.Errors}
	}

	switch action {
	case ActionCreate:
		return s.createReferral(ctx, message)
	case ActionCancel:
		return s.cancelReferral(ctx, message)
	}
	return nil, fmt.Errorf("unsupported action: %s", action)
}

func (s *Service) createReferral(ctx context.Context, message *Message) (*fhir.Bundle, error) {
	request, err := s.mapper.MapCreate(message)
	if err := s.mapped(ctx, err); err != nil {
		return nil, err
	}
	if err := s.validateSchema(ctx, wpas.CreateReferralSchema, request); err != nil {
		return nil, err
	}
	response, err := s.client.CreateReferral(ctx, request)
	s.recordBackendCall(ctx, response, err)
	if err != nil {
		return nil, fmt.Errorf("create referral: %w", err)
	}
	log.Ctx(ctx).Info().Str(logging.FieldReferralID, response.ReferralID).Msg("Referral created in WPAS")
	return withReferralID(message.Bundle, s.referralIDSystem, response.ReferralID)
}

func (s *Service) cancelReferral(ctx context.Context, message *Message) (*fhir.Bundle, error) {
	request, err := s.mapper.MapCancel(message)
	if err := s.mapped(ctx, err); err != nil {
		return nil, err
	}
	if err := s.validateSchema(ctx, wpas.CancelReferralSchema, request); err != nil {
		return nil, err
	}
	response, err := s.client.CancelReferral(ctx, request)
	s.recordBackendCall(ctx, response, err)
	if err != nil {
		return nil, fmt.Errorf("cancel referral: %w", err)
	}
	log.Ctx(ctx).Info().Str(logging.FieldReferralID, response.ReferralID).Msg("Referral cancelled in WPAS")
	return &message.Bundle, nil
}

// mapped records the mapping outcome. Mapping errors are logged, the sender gets a generic message.
func (s *Service) mapped(ctx context.Context, err error) error {
	s.auditor.Record(ctx, audit.Event{Name: audit.BackendRequestMapped, Failed: err != nil})
	if err == nil {
		return nil
	}
	log.Ctx(ctx).Warn().Err(err).Msg("Failed to map referral to WPAS request")
	return fhirerr.NewBundleValidationError("Unable to map the referral to the WPAS format")
}

func (s *Service) validateSchema(ctx context.Context, schemaName string, payload any) error {
	_, err := s.schemaValidator.Validate(schemaName, payload)
	s.auditor.Record(ctx, audit.Event{
		Name:       audit.BackendRequestSchemaValid,
		Failed:     err != nil,
		Properties: map[string]string{"schema": schemaName},
	})
	if err != nil {
		return fmt.Errorf("validate WPAS request: %w", err)
	}
	return nil
}

func (s *Service) handleGetServiceRequest(httpResponse http.ResponseWriter, request *http.Request) {
	ctx := request.Context()
	headers := echoedHeaders(request)
	s.auditor.Record(ctx, audit.Event{
		Name:       audit.RequestReceived,
		Properties: map[string]string{logging.FieldPath: request.URL.Path},
	})
	referralID := request.PathValue("id")
	if _, err := uuid.Parse(referralID); err != nil {
		s.writeError(ctx, fhirerr.ParameterValidationError{Message: fmt.Sprintf("Invalid ServiceRequest id '%s', expected a GUID", referralID)}, "Referral/GetServiceRequest", httpResponse, headers)
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otel.ReferralID, referralID))
	response, err := s.client.GetReferral(ctx, referralID)
	s.recordBackendCall(ctx, response, err)
	if err != nil {
		s.writeError(ctx, fmt.Errorf("get referral: %w", err), "Referral/GetServiceRequest", httpResponse, headers)
		return
	}
	coolfhir.SendResponse(httpResponse, http.StatusOK, s.serviceRequest(response), headers)
	s.recordResponse(ctx, http.StatusOK)
}

// serviceRequest represents a WPAS referral as FHIR ServiceRequest.
func (s *Service) serviceRequest(referral *wpas.ReferralResponse) fhir.ServiceRequest {
	status := fhir.RequestStatusActive
	if strings.EqualFold(referral.Status, wpas.ReferralStatusCancelled) {
		status = fhir.RequestStatusRevoked
	}
	result := fhir.ServiceRequest{
		Id: to.Ptr(referral.ReferralID),
		Identifier: []fhir.Identifier{
			{
				System: to.Ptr(s.referralIDSystem),
				Value:  to.Ptr(referral.ReferralID),
			},
		},
		Status: status,
		Intent: fhir.RequestIntentOrder,
		Subject: fhir.Reference{
			Type: to.Ptr("Patient"),
			Identifier: &fhir.Identifier{
				System: to.Ptr(coolfhir.NHSNumberSystem),
				Value:  to.NilString(referral.NHSNumber),
			},
		},
		AuthoredOn: to.NilString(referral.CreatedAt),
	}
	if referral.ReferringOrganisationCode != "" {
		result.Requester = organisationReference(referral.ReferringOrganisationCode)
	}
	if referral.ReceivingOrganisationCode != "" {
		result.Performer = []fhir.Reference{*organisationReference(referral.ReceivingOrganisationCode)}
	}
	return result
}

func organisationReference(odsCode string) *fhir.Reference {
	return &fhir.Reference{
		Type: to.Ptr("Organization"),
		Identifier: &fhir.Identifier{
			System: to.Ptr(coolfhir.ODSOrganizationCodeSystem),
			Value:  to.Ptr(odsCode),
		},
	}
}

func (s *Service) writeError(ctx context.Context, err error, desc string, httpResponse http.ResponseWriter, headers map[string]string) {
	translation := coolfhir.WriteOperationOutcomeFromError(ctx, err, desc, httpResponse, headers)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otel.ErrorCategory, string(translation.Category)))
	otel.Error(trace.SpanFromContext(ctx), err)
	s.auditor.Record(ctx, audit.Event{
		Name:   audit.ErrorTranslated,
		Failed: true,
		Properties: map[string]string{
			logging.FieldCategory:   string(translation.Category),
			logging.FieldStatusCode: strconv.Itoa(translation.StatusCode),
		},
	})
	s.recordResponse(ctx, translation.StatusCode)
}

func (s *Service) record(ctx context.Context, name string, outcome validation.Outcome) {
	s.auditor.Record(ctx, audit.Event{
		Name:       name,
		Failed:     !outcome.IsSuccessful(),
		Properties: map[string]string{logging.FieldCount: strconv.Itoa(len(outcome.Errors))},
	})
}

func (s *Service) recordBackendCall(ctx context.Context, response *wpas.ReferralResponse, err error) {
	properties := map[string]string{}
	if response != nil {
		properties[logging.FieldReferralID] = response.ReferralID
	}
	var callErr fhirerr.BackendCallError
	if errors.As(err, &callErr) {
		properties[logging.FieldStatusCode] = strconv.Itoa(callErr.StatusCode)
	}
	s.auditor.Record(ctx, audit.Event{Name: audit.BackendCallCompleted, Failed: err != nil, Properties: properties})
}

func (s *Service) recordResponse(ctx context.Context, statusCode int) {
	s.auditor.Record(ctx, audit.Event{
		Name:       audit.ResponseSent,
		Failed:     statusCode >= 400,
		Properties: map[string]string{logging.FieldStatusCode: strconv.Itoa(statusCode)},
	})
}

// echoedHeaders returns the request and correlation ID, which are sent back to the sender in every response.
func echoedHeaders(request *http.Request) map[string]string {
	result := map[string]string{}
	for _, name := range []string{httpserv.RequestIDHeader, httpserv.CorrelationIDHeader} {
		if value := request.Header.Get(name); value != "" {
			result[name] = value
		}
	}
	return result
}

func bundleEntries(message *Message) []fhir.BundleEntry {
	if message == nil {
		return nil
	}
	return message.Bundle.Entry
}

// withReferralID returns a copy of the Bundle in which the ServiceRequest carries the WPAS referral ID as identifier.
func withReferralID(bundle fhir.Bundle, system string, referralID string) (*fhir.Bundle, error) {
	entries := make([]fhir.BundleEntry, len(bundle.Entry))
	copy(entries, bundle.Entry)
	bundle.Entry = entries
	for i, entry := range bundle.Entry {
		var resource map[string]json.RawMessage
		if err := json.Unmarshal(entry.Resource, &resource); err != nil {
			continue
		}
		if string(resource["resourceType"]) != `"ServiceRequest"` {
			continue
		}
		var identifiers []fhir.Identifier
		if raw, ok := resource["identifier"]; ok {
			if err := json.Unmarshal(raw, &identifiers); err != nil {
				return nil, fmt.Errorf("ServiceRequest.identifier: %w", err)
			}
		}
		identifiers = append(identifiers, fhir.Identifier{
			System: to.Ptr(system),
			Value:  to.Ptr(referralID),
		})
		var err error
		if resource["identifier"], err = json.Marshal(identifiers); err != nil {
			return nil, err
		}
		if bundle.Entry[i].Resource, err = json.Marshal(resource); err != nil {
			return nil, err
		}
		break
	}
	return &bundle, nil
}
