package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })
	return recorder
}

func attrs(kv []attribute.KeyValue) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(kv))
	for _, a := range kv {
		out[a.Key] = a.Value
	}
	return out
}

func TestStartSimulationSpan(t *testing.T) {
	recorder := withRecorder(t)

	_, span := StartSimulationSpan(context.Background(), "AAPL", 30, 10000)
	EndSpan(span, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "simulation.run", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)

	a := attrs(spans[0].Attributes())
	assert.Equal(t, "AAPL", a["ticker"].AsString())
	assert.Equal(t, int64(30), a["simulation.horizon"].AsInt64())
	assert.Equal(t, int64(10000), a["simulation.paths"].AsInt64())
}

func TestStartGatewaySpan_Error(t *testing.T) {
	recorder := withRecorder(t)

	ctx, parent := StartSimulationSpan(context.Background(), "MSFT", 5, 10)
	_, span := StartGatewaySpan(ctx, "history", "MSFT")
	EndSpan(span, errors.New("status 503"))
	EndSpan(parent, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	gw := spans[0]
	assert.Equal(t, "marketdata.history", gw.Name())
	assert.Equal(t, trace.SpanKindClient, gw.SpanKind())
	assert.Equal(t, codes.Error, gw.Status().Code)
	assert.Equal(t, "status 503", gw.Status().Description)
	assert.Equal(t, spans[1].SpanContext().SpanID(), gw.Parent().SpanID())

	require.NotEmpty(t, gw.Events())
	assert.Equal(t, "exception", gw.Events()[0].Name)
}
