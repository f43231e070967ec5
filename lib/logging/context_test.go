package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestWithRequestFields(t *testing.T) {
	buf := new(bytes.Buffer)
	base := zerolog.New(buf)
	ctx := base.WithContext(context.Background())

	ctx = WithRequestFields(ctx, "req-1", "corr-1")
	zerolog.Ctx(ctx).Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "req-1", entry[FieldRequestID])
	assert.Equal(t, "corr-1", entry[FieldCorrelationID])
	assert.Equal(t, "hello", entry["message"])
	requestID, correlationID := RequestIDs(ctx)
	assert.Equal(t, "req-1", requestID)
	assert.Equal(t, "corr-1", correlationID)
}

func TestRequestIDs_NotSet(t *testing.T) {
	requestID, correlationID := RequestIDs(context.Background())
	assert.Empty(t, requestID)
	assert.Empty(t, correlationID)
}

func TestTracingHook(t *testing.T) {
	t.Run("adds trace and span ID", func(t *testing.T) {
		tracer := sdktrace.NewTracerProvider().Tracer("test")
		ctx, span := tracer.Start(context.Background(), "test")
		defer span.End()
		buf := new(bytes.Buffer)
		logger := zerolog.New(buf).Hook(TracingHook{})

		logger.Info().Ctx(ctx).Msg("hello")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, span.SpanContext().TraceID().String(), entry[FieldTraceID])
		assert.Equal(t, span.SpanContext().SpanID().String(), entry[FieldSpanID])
	})
	t.Run("no span", func(t *testing.T) {
		buf := new(bytes.Buffer)
		logger := zerolog.New(buf).Hook(TracingHook{})

		logger.Info().Ctx(context.Background()).Msg("hello")

		assert.NotContains(t, buf.String(), FieldTraceID)
	})
}
