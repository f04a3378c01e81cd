package observability_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tailored-agentic-units/passmem/observability"
)

func recordSpan(t *testing.T, events ...observability.Event) tracetest.SpanStub {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("test").Start(context.Background(), "pass")
	obs := observability.NewOTelObserver()
	for _, event := range events {
		obs.OnEvent(ctx, event)
	}
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	return tracetest.SpanStubFromReadOnlySpan(ended[0])
}

func TestOTelObserver_AddsSpanEvent(t *testing.T) {
	stub := recordSpan(t, observability.Event{
		Type:      "metric.record",
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "callback.Metric",
		Data: map[string]any{
			"name":  "accuracy",
			"value": 0.75,
			"items": 8,
		},
	})

	if len(stub.Events) != 1 {
		t.Fatalf("span has %d events, want 1", len(stub.Events))
	}
	event := stub.Events[0]
	if event.Name != "metric.record" {
		t.Errorf("event name = %q, want %q", event.Name, "metric.record")
	}

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range event.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if got := attrs["source"].AsString(); got != "callback.Metric" {
		t.Errorf("source = %q, want %q", got, "callback.Metric")
	}
	if got := attrs["value"].AsFloat64(); got != 0.75 {
		t.Errorf("value = %v, want 0.75", got)
	}
	if got := attrs["items"].AsInt64(); got != 8 {
		t.Errorf("items = %v, want 8", got)
	}
	if stub.Status.Code != codes.Unset {
		t.Errorf("status = %v, want Unset for info events", stub.Status.Code)
	}
}

func TestOTelObserver_ErrorSetsStatus(t *testing.T) {
	stub := recordSpan(t, observability.Event{
		Type:  "pass.error",
		Level: observability.LevelError,
		Data:  map[string]any{"error": "buffer received no items"},
	})

	if stub.Status.Code != codes.Error {
		t.Errorf("status = %v, want Error", stub.Status.Code)
	}
	if stub.Status.Description != "buffer received no items" {
		t.Errorf("status description = %q", stub.Status.Description)
	}
}

func TestOTelObserver_NoSpan(t *testing.T) {
	obs := observability.NewOTelObserver()
	obs.OnEvent(context.Background(), observability.Event{
		Type:  "pass.start",
		Level: observability.LevelInfo,
	})
}
