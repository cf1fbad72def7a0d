package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	return NewHeaderCarrier(&msg.Headers).Get(key)
}

func TestNewEvent_Envelope(t *testing.T) {
	type placed struct {
		OrderID int64  `json:"order_id"`
		Total   string `json:"total"`
	}

	event, err := NewEvent("order.placed", "1717171717000", "storefront",
		placed{OrderID: 1717171717000, Total: "499.00"},
		WithCorrelationID("corr-1"),
		WithMetadata("session_id", "s1"),
	)
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 1, event.SchemaVersion)
	assert.WithinDuration(t, time.Now().UTC(), event.OccurredAt, 2*time.Second)

	out, err := event.Marshal()
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, "order.placed", wire["event_type"])
	assert.Equal(t, "1717171717000", wire["key"])
	assert.Equal(t, "storefront", wire["source"])
	assert.Equal(t, "corr-1", wire["correlation_id"])
	assert.Equal(t, map[string]any{"session_id": "s1"}, wire["metadata"])
	assert.Equal(t, map[string]any{"order_id": 1717171717000.0, "total": "499.00"}, wire["data"])
}

func TestNewEvent_WithoutOptions(t *testing.T) {
	event, err := NewEvent("order.placed", "1", "storefront", nil, WithCorrelationID(""))
	require.NoError(t, err)

	out, err := event.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "correlation_id")
	assert.NotContains(t, string(out), "metadata")
	assert.JSONEq(t, "null", string(event.Data))
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("order.placed", "1", "storefront", make(chan int))
	require.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecobazaar.order.placed", Topic("order", "placed"))
}

func TestProducer_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, nil)

	event, err := NewEvent("order.placed", "42", "storefront", map[string]int{"item_count": 3},
		WithCorrelationID("corr-42"))
	require.NoError(t, err)

	require.NoError(t, p.Publish(context.Background(), Topic("order", "placed"), event))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "ecobazaar.order.placed", msg.Topic)
	assert.Equal(t, []byte("42"), msg.Key)
	assert.Equal(t, "order.placed", header(msg, "event_type"))
	assert.Equal(t, "storefront", header(msg, "source"))
	assert.Equal(t, "corr-42", header(msg, "correlation_id"))

	var envelope Event
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, event.ID, envelope.ID)
	assert.JSONEq(t, `{"item_count":3}`, string(envelope.Data))
}

func TestProducer_PublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, nil)

	event, err := NewEvent("order.placed", "1", "storefront", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "t", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestMessage_InjectsTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	event, err := NewEvent("order.placed", "1", "storefront", nil)
	require.NoError(t, err)

	msg, err := Message(ctx, "t", event)
	require.NoError(t, err)
	assert.Contains(t, header(msg, "traceparent"), span.SpanContext().TraceID().String())
}

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Empty(t, c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "v3")
	assert.Equal(t, "v2", c.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "new"}, c.Keys())
	assert.Len(t, headers, 2)
}

func TestProducer_Close(t *testing.T) {
	w := &recordingWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, nil).Close())
	assert.True(t, w.closed)
}

func TestNewProducer_DoesNotDial(t *testing.T) {
	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), nil)
	require.NotNil(t, p)
	assert.NoError(t, p.Close())
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	err := PingBrokers(t.Context(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
