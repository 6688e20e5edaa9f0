package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer creates a test tracer with an in-memory exporter.
func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)

	oldProvider := otel.GetTracerProvider()

	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		otel.SetTracerProvider(oldProvider)
	})

	return exporter
}

func spanAttributes(stub tracetest.SpanStub) map[string]any {
	attrMap := make(map[string]any)
	for _, attr := range stub.Attributes {
		attrMap[string(attr.Key)] = attr.Value.AsInterface()
	}

	return attrMap
}

// TestFireSpans cannot run in parallel because it replaces the global
// tracer provider.
//
//nolint:paralleltest,tparallel // Test modifies global OTEL tracer provider
func TestFireSpans(t *testing.T) {
	exporter := setupTestTracer(t)

	l := &lamp{state: lampOff, watts: 60}
	engine := newLampEngine(t, l, WithName("span-lamp"))

	t.Run("fired", func(t *testing.T) {
		exporter.Reset()

		require.NoError(t, engine.Fire(t.Context(), turnOn, nil))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "statemachine.fire", spans[0].Name)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)

		attrs := spanAttributes(spans[0])
		assert.Equal(t, "span-lamp", attrs["machine"])
		assert.Equal(t, "TurnOn", attrs["trigger"])
		assert.Equal(t, "Off", attrs["from"])
		assert.Equal(t, "On", attrs["to"])
		assert.Equal(t, true, attrs["transitioned"])
		assert.Equal(t, outcomeFired, attrs["outcome"])
	})

	t.Run("declined", func(t *testing.T) {
		exporter.Reset()

		require.NoError(t, engine.Fire(t.Context(), turnOn, nil))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		attrs := spanAttributes(spans[0])
		assert.Equal(t, outcomeDeclined, attrs["outcome"])
		assert.NotContains(t, attrs, "to")
	})

	t.Run("action error", func(t *testing.T) {
		exporter.Reset()

		require.Error(t, engine.Fire(t.Context(), turnOff, func(context.Context) error { return errBulbBlown }))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, outcomeActionError, spanAttributes(spans[0])["outcome"])
		assert.NotEmpty(t, spans[0].Events, "error is recorded as a span event")
	})
}
