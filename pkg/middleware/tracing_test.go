package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return sr
}

// cartRouter mounts a few storefront-shaped routes behind Tracing.
func cartRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing())
	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Put("/items/{position}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
		r.Delete("/items/{position}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadRequest) })
		r.Post("/checkout", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	})
	return r
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTracing_NamesSpanAfterRoute(t *testing.T) {
	tests := []struct {
		method, path string
		wantName     string
		wantRoute    string
		wantStatus   int64
		wantError    bool
	}{
		{http.MethodPut, "/api/v1/cart/items/2", "PUT /api/v1/cart/items/{position}", "/api/v1/cart/items/{position}", 200, false},
		{http.MethodDelete, "/api/v1/cart/items/x", "DELETE /api/v1/cart/items/{position}", "/api/v1/cart/items/{position}", 400, false},
		{http.MethodPost, "/api/v1/cart/checkout", "POST /api/v1/cart/checkout", "/api/v1/cart/checkout", 500, true},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			sr := recordSpans(t)

			rec := httptest.NewRecorder()
			cartRouter().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			spans := sr.Ended()
			require.Len(t, spans, 1)
			span := spans[0]

			assert.Equal(t, tt.wantName, span.Name())
			a := attrs(span)
			assert.Equal(t, tt.wantRoute, a["http.route"].AsString())
			assert.Equal(t, tt.wantStatus, a["http.status_code"].AsInt64())
			assert.Equal(t, tt.path, a["http.target"].AsString())
			if tt.wantError {
				assert.Equal(t, codes.Error, span.Status().Code)
			} else {
				assert.Equal(t, codes.Unset, span.Status().Code)
			}
		})
	}
}

func TestTracing_UnmatchedPathKeepsRawName(t *testing.T) {
	sr := recordSpans(t)

	rec := httptest.NewRecorder()
	cartRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/unknown", spans[0].Name())
}

func TestTracing_ContinuesInboundTrace(t *testing.T) {
	sr := recordSpans(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	cartRouter().ServeHTTP(rec, req)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())
	assert.Equal(t, "https", attrs(span)["http.scheme"].AsString())

	// The response names the server span so a browser trace can be joined.
	assert.Contains(t, rec.Header().Get("traceparent"), span.SpanContext().SpanID().String())
}

func TestTracing_HandlerSeesServerSpan(t *testing.T) {
	recordSpans(t)

	var sampled bool
	r := chi.NewRouter()
	r.Use(Tracing())
	r.Get("/api/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		sampled = trace.SpanFromContext(r.Context()).SpanContext().IsSampled()
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.True(t, sampled)
}
