package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSimulationSpan starts a span around a Monte Carlo run.
func StartSimulationSpan(ctx context.Context, ticker string, horizon, paths int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "simulation.run",
		trace.WithAttributes(
			attribute.String("ticker", ticker),
			attribute.Int("simulation.horizon", horizon),
			attribute.Int("simulation.paths", paths),
		),
	)
}

// StartGatewaySpan starts a client span around a market data provider call.
func StartGatewaySpan(ctx context.Context, operation, ticker string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "marketdata."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("ticker", ticker),
		),
	)
}

// EndSpan records err on the span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
