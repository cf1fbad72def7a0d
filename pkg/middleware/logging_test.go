package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ecobazaar/storefront/pkg/logger"
)

func TestRequestLogging_GeneratesCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	handler := RequestLogging(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(CorrelationHeader))

	out := lastLine(t, &buf)
	assert.Equal(t, "http request", out["msg"])
	assert.Equal(t, float64(http.StatusCreated), out["status"])
	assert.Equal(t, "/api/v1/orders", out["path"])
	assert.Equal(t, "INFO", out["level"])
}

func TestRequestLogging_KeepsInboundCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogging(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "from-client")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "from-client", rec.Header().Get(CorrelationHeader))
	assert.Equal(t, "from-client", lastLine(t, &buf)["correlation_id"])
}

func TestRequestLogging_ServerErrorLoggedAsError(t *testing.T) {
	var buf bytes.Buffer
	handler := RequestLogging(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "ERROR", lastLine(t, &buf)["level"])
}

func TestStatusWriter_FlushAndUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := newStatusWriter(rec)

	assert.Same(t, sw, newStatusWriter(sw))
	assert.Equal(t, rec, sw.Unwrap())

	sw.Flush()
	assert.True(t, rec.Flushed)

	_, _ = sw.Write([]byte("data: x\n\n"))
	sw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, sw.statusCode)
	assert.Equal(t, 9, sw.bytes)
}
