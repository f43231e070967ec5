package audit

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhcw/wpas-referral-proxy/lib/coolfhir"
	"github.com/dhcw/wpas-referral-proxy/lib/logging"
	"github.com/dhcw/wpas-referral-proxy/lib/to"
	"github.com/dhcw/wpas-referral-proxy/messaging"
	"github.com/rs/zerolog/log"
	"github.com/zorgbijjou/golang-fhir-models/fhir-models/fhir"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Event names
const (
	RequestReceived           = "request.received"
	ResponseSent              = "response.sent"
	HeadersValidated          = "headers.validated"
	BundleParsed              = "bundle.parsed"
	WorkflowDetermined        = "workflow.determined"
	ProfileValidated          = "profile.validated"
	MandatoryDataValidated    = "mandatory_data.validated"
	BackendRequestMapped      = "backend_request.mapped"
	BackendRequestSchemaValid = "backend_request.schema_validated"
	BackendCallCompleted      = "backend_call.completed"
	ErrorTranslated           = "error.translated"
)

// EventTypeSystem is the code system of AuditEvent.type, holding the event name.
const EventTypeSystem = "https://fhir.nhs.wales/CodeSystem/wpas-referral-proxy-event"

var nowFunc = time.Now

// Event is a named occurrence in the referral pipeline, with free-form properties.
type Event struct {
	Name       string
	Failed     bool
	Properties map[string]string
}

// Sink receives audit events. Record must not block and must not fail the caller.
type Sink interface {
	Record(ctx context.Context, event Event)
}

type Config struct {
	// Enabled controls whether audit events are published as FHIR AuditEvents to the message broker.
	// Events are always added to the active span and logged at debug level.
	Enabled bool `koanf:"enabled"`
	// Topic is the message broker topic AuditEvents are published to.
	Topic string `koanf:"topic"`
	// BufferSize is the number of events that can be queued for publishing. Events are dropped when the buffer is full.
	BufferSize     int    `koanf:"buffersize"`
	ObserverSystem string `koanf:"observersystem"`
	ObserverValue  string `koanf:"observervalue"`
}

func DefaultConfig() Config {
	return Config{
		Topic:          "referral-audit",
		BufferSize:     1000,
		ObserverSystem: "https://fhir.nhs.wales/Id/wpas-referral-proxy",
		ObserverValue:  "wpas-referral-proxy",
	}
}

func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Topic == "" {
		return errors.New("topic is not configured")
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	return nil
}

// Entity returns the message broker topic AuditEvents are published to.
func (c Config) Entity() messaging.Entity {
	return messaging.Entity{Name: c.Topic}
}

var _ Sink = &Recorder{}

// Recorder is the Sink of the proxy. Every event is added to the active span and logged;
// if a broker is configured, it is also published as FHIR AuditEvent by a background worker.
type Recorder struct {
	config  Config
	broker  messaging.Broker
	queue   chan publication
	mux     sync.RWMutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

type publication struct {
	auditEvent    fhir.AuditEvent
	correlationID string
}

// NewRecorder creates a Recorder. When broker is nil or publishing is disabled, events are only traced and logged.
func NewRecorder(config Config, broker messaging.Broker) *Recorder {
	r := &Recorder{
		config: config,
		done:   make(chan struct{}),
	}
	if config.Enabled && broker != nil {
		r.broker = broker
		r.queue = make(chan publication, max(config.BufferSize, 1))
		go r.publish()
	} else {
		close(r.done)
	}
	return r
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	keys := slices.Sorted(maps.Keys(event.Properties))
	attributes := make([]attribute.KeyValue, 0, len(keys)+1)
	attributes = append(attributes, attribute.Bool("failed", event.Failed))
	for _, key := range keys {
		attributes = append(attributes, attribute.String(key, event.Properties[key]))
	}
	trace.SpanFromContext(ctx).AddEvent(event.Name, trace.WithAttributes(attributes...))

	logEvent := log.Ctx(ctx).Debug()
	if logEvent.Enabled() {
		for _, key := range keys {
			logEvent = logEvent.Str(key, event.Properties[key])
		}
		logEvent.Str(logging.FieldEvent, event.Name).Bool("failed", event.Failed).Msg("Audit event")
	}

	if r.queue == nil {
		return
	}
	_, correlationID := logging.RequestIDs(ctx)
	item := publication{
		auditEvent:    r.auditEvent(event, keys),
		correlationID: correlationID,
	}
	r.mux.RLock()
	defer r.mux.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- item:
	default:
		dropped := r.dropped.Add(1)
		log.Ctx(ctx).Warn().
			Str(logging.FieldEvent, event.Name).
			Int64(logging.FieldCount, dropped).
			Msg("Audit event buffer is full, event dropped")
	}
}

// Dropped returns the number of events that were dropped because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close stops accepting events and waits until the queued events are published, or ctx expires.
func (r *Recorder) Close(ctx context.Context) error {
	r.mux.Lock()
	if !r.closed && r.queue != nil {
		close(r.queue)
	}
	r.closed = true
	r.mux.Unlock()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) publish() {
	defer close(r.done)
	entity := r.config.Entity()
	for item := range r.queue {
		data, err := json.Marshal(item.auditEvent)
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal AuditEvent")
			continue
		}
		message := &messaging.Message{
			Body:        data,
			ContentType: coolfhir.FHIRContentType,
		}
		if item.correlationID != "" {
			message.CorrelationID = to.Ptr(item.correlationID)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.broker.SendMessage(ctx, entity, message); err != nil {
			log.Error().Err(err).Str(logging.FieldEvent, to.EmptyString(item.auditEvent.Type.Code)).Msg("Failed to publish AuditEvent")
		}
		cancel()
	}
}

func (r *Recorder) auditEvent(event Event, keys []string) fhir.AuditEvent {
	observer := fhir.Reference{
		Identifier: &fhir.Identifier{
			System: to.Ptr(r.config.ObserverSystem),
			Value:  to.Ptr(r.config.ObserverValue),
		},
		Type: to.Ptr("Device"),
	}
	outcome := fhir.AuditEventOutcome0
	if event.Failed {
		outcome = fhir.AuditEventOutcome4
	}
	entity := fhir.AuditEventEntity{}
	for _, key := range keys {
		entity.Detail = append(entity.Detail, fhir.AuditEventEntityDetail{
			Type:        key,
			ValueString: to.Ptr(event.Properties[key]),
		})
		if key == logging.FieldReferralID {
			entity.What = &fhir.Reference{
				Type:    to.Ptr("ServiceRequest"),
				Display: to.Ptr(event.Properties[key]),
			}
		}
	}
	result := fhir.AuditEvent{
		Type: fhir.Coding{
			System: to.Ptr(EventTypeSystem),
			Code:   to.Ptr(event.Name),
		},
		Action:   to.Ptr(fhir.AuditEventActionE),
		Recorded: nowFunc().Format(time.RFC3339),
		Outcome:  &outcome,
		Agent:    []fhir.AuditEventAgent{{Who: &observer}},
		Source:   fhir.AuditEventSource{Observer: observer},
	}
	if len(entity.Detail) > 0 {
		result.Entity = []fhir.AuditEventEntity{entity}
	}
	return result
}
