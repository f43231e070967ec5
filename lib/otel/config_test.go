package otel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{
			name:   "disabled config is always valid",
			config: Config{Enabled: false, Exporter: ExporterConfig{Type: "foo"}},
		},
		{
			name:   "default config",
			config: DefaultConfig(),
		},
		{
			name:   "valid otlp config",
			config: Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: "otlp", OTLP: OTLPConfig{Endpoint: "localhost:4318"}}},
		},
		{
			name:   "valid otlp grpc config",
			config: Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: "otlp", OTLP: OTLPConfig{Protocol: "grpc", Endpoint: "localhost:4317"}}},
		},
		{
			name:   "unsupported otlp protocol",
			config: Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: "otlp", OTLP: OTLPConfig{Protocol: "thrift", Endpoint: "localhost:4317"}}},
			errMsg: "unsupported OTLP protocol: thrift",
		},
		{
			name:   "missing service name",
			config: Config{Enabled: true, Exporter: ExporterConfig{Type: "stdout"}},
			errMsg: "service name is required",
		},
		{
			name:   "missing otlp endpoint",
			config: Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: "otlp"}},
			errMsg: "OTLP endpoint is required",
		},
		{
			name:   "invalid sample ratio",
			config: Config{Enabled: true, ServiceName: "test", SampleRatio: 2, Exporter: ExporterConfig{Type: "none"}},
			errMsg: "sample ratio must be between 0 and 1",
		},
		{
			name:   "invalid exporter type",
			config: Config{Enabled: true, ServiceName: "test", Exporter: ExporterConfig{Type: "jaeger"}},
			errMsg: "unsupported exporter type: jaeger",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.errMsg)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		tp, err := Initialize(context.Background(), Config{})
		require.NoError(t, err)
		assert.NoError(t, tp.Shutdown(context.Background()))
	})
	t.Run("enabled without exporter", func(t *testing.T) {
		config := DefaultConfig()
		config.Enabled = true
		config.Exporter.Type = "none"
		tp, err := Initialize(context.Background(), config)
		require.NoError(t, err)
		assert.NoError(t, tp.Shutdown(context.Background()))
	})
	t.Run("otlp over grpc", func(t *testing.T) {
		config := DefaultConfig()
		config.Enabled = true
		config.Exporter.Type = "otlp"
		config.Exporter.OTLP.Protocol = "grpc"
		config.Exporter.OTLP.Endpoint = "localhost:4317"
		config.Exporter.OTLP.Insecure = true
		tp, err := Initialize(context.Background(), config)
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	})
	t.Run("unsupported exporter", func(t *testing.T) {
		config := DefaultConfig()
		config.Enabled = true
		config.Exporter.Type = "jaeger"
		_, err := Initialize(context.Background(), config)
		assert.EqualError(t, err, "unsupported exporter type: jaeger")
	})
}

func TestHandlerWithTracing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	handler := HandlerWithTracing(tracer, "test-operation")(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadRequest)
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/$process-message", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "test-operation", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}
