package cohort

import "context"

// EventHandler receives one inbound event payload from a topic.
type EventHandler func(event string)

// TopicConnector is a live handle to one cohort topic. Publish errors are
// classified with the transport error constructors: a retryable error means
// the same handle may be retried, anything else means the handle is spent
// and must be closed and recreated.
//
// Close is idempotent per handle but a handle is never reused after Close.
type TopicConnector interface {
	// Publish sends one event payload to the topic.
	Publish(ctx context.Context, event string) error

	// Subscribe registers a handler for inbound events. Handlers run on the
	// connector's receive goroutine and must not block for long.
	Subscribe(handler EventHandler)

	// Close releases the underlying broker resources.
	Close() error
}

// TopicConnectorFactory creates a fresh connector handle. The publisher
// calls it on startup and again whenever it recycles a spent handle.
type TopicConnectorFactory func() (TopicConnector, error)
