package internal

import (
	"context"
	"sync"

	"github.com/lychee-technology/cohort"
)

// MemoryTopic is an in-process topic for single-member deployments and
// tests. Published events are delivered synchronously to every subscribed
// handler.
type MemoryTopic struct {
	mu       sync.Mutex
	handlers []cohort.EventHandler
	closed   bool
	events   []string
}

// NewMemoryTopic creates an empty in-memory topic.
func NewMemoryTopic() *MemoryTopic {
	return &MemoryTopic{}
}

// Factory returns a TopicConnectorFactory that hands out this same topic, so
// publisher recycling keeps delivering to the same subscribers.
func (t *MemoryTopic) Factory() cohort.TopicConnectorFactory {
	return func() (cohort.TopicConnector, error) {
		return &memoryTopicHandle{topic: t}, nil
	}
}

// Connector returns a handle directly, for subscribe-only wiring.
func (t *MemoryTopic) Connector() cohort.TopicConnector {
	return &memoryTopicHandle{topic: t}
}

// Events returns a copy of everything published so far.
func (t *MemoryTopic) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func (t *MemoryTopic) publish(event string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return cohort.NewFatalTransportError(cohort.ErrCodeConnectionClosed,
			"memory topic is closed", nil)
	}
	t.events = append(t.events, event)
	handlers := append([]cohort.EventHandler(nil), t.handlers...)
	t.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (t *MemoryTopic) subscribe(handler cohort.EventHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

// memoryTopicHandle is one connector view over the shared topic. Closing a
// handle does not close the topic; other handles keep working.
type memoryTopicHandle struct {
	topic  *MemoryTopic
	closed bool
	mu     sync.Mutex
}

func (h *memoryTopicHandle) Publish(_ context.Context, event string) error {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return cohort.NewFatalTransportError(cohort.ErrCodeConnectionClosed,
			"publish on a closed topic connection", nil)
	}
	return h.topic.publish(event)
}

func (h *memoryTopicHandle) Subscribe(handler cohort.EventHandler) {
	h.topic.subscribe(handler)
}

func (h *memoryTopicHandle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}
