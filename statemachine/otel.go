package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/statecart/statecart/statemachine"

// startFireSpan creates the span covering one Fire call.
// Uses the global tracer provider installed by the telemetry package.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startFireSpan(ctx context.Context, machine, trigger string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statemachine.fire")
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("trigger", trigger),
	)

	return ctx, span
}

// finishFireSpan records the outcome and ends the span.
func finishFireSpan(span trace.Span, event FireEvent, outcome string, err error) {
	span.SetAttributes(
		attribute.String("from", event.From),
		attribute.String("outcome", outcome),
		attribute.Int64("duration_ms", event.Duration.Milliseconds()),
	)

	if outcome != outcomeDeclined {
		span.SetAttributes(
			attribute.String("to", event.To),
			attribute.Bool("transitioned", event.Transitioned),
		)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, outcome)
	}

	span.End()
}
