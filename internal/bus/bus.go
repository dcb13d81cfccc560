// Package bus provides event bus implementations for publishing evaluation
// results to other processes.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ricesearch/senseval/internal/pkg/errors"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "evaluation.completed").
	Type string `json:"type"`

	// Source is the process that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// Payload contains the JSON-encoded event data.
	Payload json.RawMessage `json:"payload"`
}

// Event types and topics.
const (
	TypeEvaluationCompleted = "evaluation.completed"

	TopicEvaluationCompleted = "senseval.evaluation.completed"

	// Source identifies events published by this tool.
	Source = "senseval"
)

// NewEvent creates an event with a fresh ID and the JSON encoding of payload.
func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrap(errors.CodeInternal, "failed to marshal event payload", err)
	}

	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    Source,
		Timestamp: time.Now().UnixMilli(),
		Payload:   data,
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrap(errors.CodeValidation, "failed to decode event payload", err).
			WithDetail("event_id", e.ID)
	}
	return nil
}

// NopBus discards published events. It backs the "none" bus type.
type NopBus struct{}

// Publish drops the event.
func (NopBus) Publish(context.Context, string, Event) error { return nil }

// Subscribe is not supported without a bus.
func (NopBus) Subscribe(context.Context, string, Handler) error {
	return errors.New(errors.CodeValidation, "subscribing requires a memory or kafka bus")
}

// Close does nothing.
func (NopBus) Close() error { return nil }
