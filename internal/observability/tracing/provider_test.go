package tracing

import (
	"context"
	"testing"

	"github.com/smallbiznis/subscription-coprocessor/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

func TestNewProviderDisabledNeverSamples(t *testing.T) {
	provider, err := NewProvider(nil, Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	_, span := provider.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsSampled())
}

func TestNewExporterRejectsUnknownProtocol(t *testing.T) {
	_, err := newExporter("smoke-signals", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported OTLP protocol")
}

func TestCorrelationSpanProcessorStampsRequestSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&correlationSpanProcessor{}),
		sdktrace.WithSpanProcessor(recorder),
	)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx := correlation.ContextWithCorrelationID(context.Background(), "01HZX3V9Q0")
	_, span := provider.Tracer("test").Start(ctx, "rollup.handle")
	span.End()
	_, bare := provider.Tracer("test").Start(context.Background(), "startup")
	bare.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Contains(t, ended[0].Attributes(), attribute.String("correlation_id", "01HZX3V9Q0"))
	assert.Empty(t, ended[1].Attributes())
}
