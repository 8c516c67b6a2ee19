package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventCommandStarted   EventType = "command.started"
	EventCommandCompleted EventType = "command.completed"
	EventCommandFailed    EventType = "command.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// CommandEventPayload is the payload of command.* events. Paths are left out
// on purpose so that event subscribers never see host file names.
type CommandEventPayload struct {
	Command    string    `json:"command"`
	Code       ErrorCode `json:"code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// EventHandler processes a published event.
type EventHandler func(ctx context.Context, event Event)

// EventBus is an in-process publish/subscribe bus.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for one event type and returns an unsubscribe func.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler for every event and returns an unsubscribe func.
	SubscribeAll(handler EventHandler) func()
	Close()
}
