package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventLogChanged is published when a watched log file changes.
	// Payload: string path
	EventLogChanged EventType = "log_changed"

	// EventRefreshRequested asks the aggregator for a forced refresh.
	// Payload: *RefreshRequest
	EventRefreshRequested EventType = "refresh_requested"

	// EventSnapshotPublished is published after a new snapshot replaced the
	// previous one. Payload: *models.AggregateSnapshot
	EventSnapshotPublished EventType = "snapshot_published"
)

// RefreshRequest is the payload of EventRefreshRequested. The aggregator
// sets Queued when published with PublishSync; false means the request was
// coalesced into an already queued refresh.
type RefreshRequest struct {
	Reason string
	Queued bool
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
