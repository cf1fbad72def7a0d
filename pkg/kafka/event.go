package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope written to a topic. Key chooses the partition, so
// events sharing a key are delivered in publish order.
type Event struct {
	ID            string            `json:"event_id"`
	Type          string            `json:"event_type"`
	Key           string            `json:"key"`
	Source        string            `json:"source"`
	SchemaVersion int               `json:"schema_version"`
	OccurredAt    time.Time         `json:"occurred_at"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Data          json.RawMessage   `json:"data"`
}

// EventOption customizes an event built by NewEvent.
type EventOption func(*Event)

// WithCorrelationID ties the event to the request that caused it. An empty
// id leaves the event uncorrelated.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) { e.CorrelationID = id }
}

// WithMetadata attaches a string attribute outside the payload.
func WithMetadata(key, value string) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string)
		}
		e.Metadata[key] = value
	}
}

// NewEvent wraps data in a schema version 1 envelope with a fresh id, stamped
// with the current UTC time.
func NewEvent(eventType, key, source string, data any, opts ...EventOption) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	e := &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Key:           key,
		Source:        source,
		SchemaVersion: 1,
		OccurredAt:    time.Now().UTC(),
		Data:          payload,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Marshal encodes the envelope as it is written to the topic.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
