// Package pubsub provides a generic publish/subscribe event system used to
// decouple the engine from its observers: the reconciliation engine and the
// batch runner publish, presentation layers subscribe.
package pubsub

import (
	"context"
	"time"
)

// EventType represents the type of event being published.
type EventType string

const (
	// RepopulatedEvent fires after the registry rebuilt its row model.
	RepopulatedEvent EventType = "repopulated"

	// SelectionChangedEvent fires when a channel's ROI rectangle moves.
	SelectionChangedEvent EventType = "selection-changed"

	// BatchFinishedEvent fires after a batch operation completes.
	BatchFinishedEvent EventType = "batch-finished"

	// MacroLoadedEvent fires when a processing log is (re)parsed.
	MacroLoadedEvent EventType = "macro-loaded"

	// SessionClosedEvent fires once during session teardown.
	SessionClosedEvent EventType = "session-closed"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
