package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig("storefront"))
	if err != nil {
		t.Fatalf("InitTracer(disabled) returned error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown(disabled) returned error: %v", err)
	}
	if otel.GetTextMapPropagator() == nil {
		t.Fatal("propagator should be installed when disabled")
	}
}

func TestInitTracer_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	cfg := DefaultConfig("storefront")
	cfg.Enabled = true
	cfg.OTLPEndpoint = "127.0.0.1:0"
	cfg.SampleRate = 0.5

	shutdown, err := InitTracer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("InitTracer(enabled) returned error: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Errorf("expected *sdktrace.TracerProvider, got %T", otel.GetTracerProvider())
	}
	if err := shutdown(context.Background()); err != nil {
		t.Logf("shutdown returned (endpoint unreachable): %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{0.0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := Sampler(tt.rate).Description()
		if want := "ParentBased{root:" + tt.want; len(desc) < len(want) || desc[:len(want)] != want {
			t.Errorf("Sampler(%v) = %q, want prefix %q", tt.rate, desc, want)
		}
	}
}

func TestStartAndRecordError(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	_, span := Start(context.Background(), "store.place_order")
	RecordError(span, nil)
	RecordError(span, errors.New("write failed"))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("got %d spans, want 1", len(ended))
	}
	if ended[0].Name() != "store.place_order" {
		t.Errorf("name = %q", ended[0].Name())
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended[0].Status().Code)
	}
	if len(ended[0].Events()) != 1 {
		t.Errorf("events = %d, want 1 recorded error", len(ended[0].Events()))
	}
}
