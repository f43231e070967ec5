package logging

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// WithRequestFields returns a context carrying a logger that includes the request and correlation ID in every entry,
// so that log entries of concurrent requests can be told apart.
func WithRequestFields(ctx context.Context, requestID string, correlationID string) context.Context {
	logContext := log.Ctx(ctx).With().Ctx(ctx)
	if requestID != "" {
		logContext = logContext.Str(FieldRequestID, requestID)
	}
	if correlationID != "" {
		logContext = logContext.Str(FieldCorrelationID, correlationID)
	}
	logger := logContext.Logger()
	ctx = context.WithValue(ctx, requestFieldsKey{}, requestFields{requestID: requestID, correlationID: correlationID})
	return logger.WithContext(ctx)
}

type requestFieldsKey struct{}

type requestFields struct {
	requestID     string
	correlationID string
}

// RequestIDs returns the request and correlation ID stored by WithRequestFields, or empty strings if there are none.
func RequestIDs(ctx context.Context) (requestID string, correlationID string) {
	fields, _ := ctx.Value(requestFieldsKey{}).(requestFields)
	return fields.requestID, fields.correlationID
}

var _ zerolog.Hook = TracingHook{}

// TracingHook adds the OpenTelemetry trace and span ID to log entries whose context carries a valid span.
type TracingHook struct{}

func (TracingHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}
	if spanCtx := trace.SpanFromContext(ctx).SpanContext(); spanCtx.IsValid() {
		e.Str(FieldTraceID, spanCtx.TraceID().String())
		e.Str(FieldSpanID, spanCtx.SpanID().String())
	}
}
