package cohort

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PublisherState is the coarse lifecycle state of an EventPublisher, exposed
// for observability.
type PublisherState string

const (
	PublisherStateInit         PublisherState = "initializing"
	PublisherStateRunning      PublisherState = "running"
	PublisherStateErrorLoop    PublisherState = "error_loop"
	PublisherStateShuttingDown PublisherState = "shutting_down"
	PublisherStateStopped      PublisherState = "stopped"
)

const (
	defaultPollInterval  = time.Second
	defaultRecoverySleep = 10 * time.Second
	defaultMaxRetries    = 10
)

// EventPublisher owns one topic's outbound side: a buffered queue of event
// payloads and a single worker goroutine that drains it to the broker.
//
// SendEvent never blocks on the broker and never fails: it appends to the
// in-memory buffer and returns, so repository request threads are insulated
// from broker outages. Delivery ordering follows buffer order because only
// the worker goroutine ever publishes.
type EventPublisher struct {
	topicName string
	factory   TopicConnectorFactory
	audit     AuditLog

	pollInterval  time.Duration
	recoverySleep time.Duration
	maxRetries    int

	mu      sync.Mutex
	buffer  []string
	running bool
	state   PublisherState

	// worker-owned; never touched outside the run goroutine once started
	conn TopicConnector

	sentCount     int64
	inErrorStreak bool

	done chan struct{}
}

// PublisherOption adjusts an EventPublisher at construction time.
type PublisherOption func(*EventPublisher)

// WithPollInterval sets the idle sleep between buffer drains.
func WithPollInterval(d time.Duration) PublisherOption {
	return func(p *EventPublisher) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

// WithRecoverySleep sets the pause after a retryable run-loop failure.
func WithRecoverySleep(d time.Duration) PublisherOption {
	return func(p *EventPublisher) {
		if d > 0 {
			p.recoverySleep = d
		}
	}
}

// WithMaxRetries sets the per-event send attempt bound.
func WithMaxRetries(n int) PublisherOption {
	return func(p *EventPublisher) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// NewEventPublisher creates a publisher for one topic. The factory is called
// lazily by the worker, so constructing a publisher never touches the broker.
func NewEventPublisher(topicName string, factory TopicConnectorFactory, audit AuditLog, opts ...PublisherOption) *EventPublisher {
	if audit == nil {
		audit = NopAuditLog{}
	}
	p := &EventPublisher{
		topicName:     topicName,
		factory:       factory,
		audit:         audit,
		pollInterval:  defaultPollInterval,
		recoverySleep: defaultRecoverySleep,
		maxRetries:    defaultMaxRetries,
		state:         PublisherStateInit,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SendEvent queues one event payload for delivery. It returns immediately;
// delivery happens asynchronously in buffer order. Events sent after Stop
// are accepted into the buffer but will not be delivered.
func (p *EventPublisher) SendEvent(event string) {
	p.mu.Lock()
	p.buffer = append(p.buffer, event)
	p.mu.Unlock()
}

// Start launches the worker goroutine. Calling Start twice is an error.
func (p *EventPublisher) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return NewInvalidParameterError(ErrCodeTopicUnavailable,
			fmt.Sprintf("publisher for topic %s is already running", p.topicName))
	}
	p.running = true
	p.state = PublisherStateRunning
	p.mu.Unlock()

	p.audit.LogRecord(AuditRecord{
		ComponentName: p.componentName(),
		Severity:      AuditSeverityStartup,
		MessageID:     AuditPublisherStart,
		Message:       fmt.Sprintf("event publisher for topic %s is starting", p.topicName),
		Details:       map[string]any{"topic": p.topicName},
	})

	go p.run()
	return nil
}

// Stop asks the worker to finish its current iteration and exit. It does not
// wait; use Done to observe completion. Buffered events that have not been
// delivered when the worker notices the flag are dropped.
func (p *EventPublisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.state = PublisherStateShuttingDown
	p.mu.Unlock()
}

// State returns the publisher's current lifecycle state.
func (p *EventPublisher) State() PublisherState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done is closed when the worker goroutine has exited and the broker handle
// is released.
func (p *EventPublisher) Done() <-chan struct{} {
	return p.done
}

// BufferedCount returns the number of undelivered events.
func (p *EventPublisher) BufferedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *EventPublisher) componentName() string {
	return "event-publisher:" + p.topicName
}

func (p *EventPublisher) keepRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// takeBuffer removes and returns the whole pending buffer.
func (p *EventPublisher) takeBuffer() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buffer) == 0 {
		return nil
	}
	batch := p.buffer
	p.buffer = nil
	return batch
}

// requeueFront puts undelivered events back at the head of the buffer so
// ordering is preserved across a run-loop recovery.
func (p *EventPublisher) requeueFront(events []string) {
	if len(events) == 0 {
		return
	}
	p.mu.Lock()
	p.buffer = append(append([]string(nil), events...), p.buffer...)
	p.mu.Unlock()
}

func (p *EventPublisher) setState(s PublisherState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// run is the worker loop. It drains the buffer in order, sleeps when idle,
// recycles the broker handle on unrecoverable send failures and terminates
// only on the stop flag or a fatal run-loop error.
func (p *EventPublisher) run() {
	defer p.finish()

	for p.keepRunning() {
		batch := p.takeBuffer()
		if batch == nil {
			time.Sleep(p.pollInterval)
			continue
		}

		for i, event := range batch {
			if !p.keepRunning() {
				// shutdown mid-batch; remaining events are dropped with
				// the rest of the buffer
				return
			}
			if err := p.publishEvent(event); err != nil {
				if IsRetryableTransportError(err) {
					// the event itself was dropped after exhausting its
					// retries; keep the rest of the batch and pause before
					// resuming
					p.requeueFront(batch[i+1:])
					p.setState(PublisherStateErrorLoop)
					p.audit.LogRecord(AuditRecord{
						ComponentName: p.componentName(),
						Severity:      AuditSeverityWarning,
						MessageID:     AuditPublisherRecovering,
						Message:       fmt.Sprintf("publisher for topic %s pausing %s after send failures", p.topicName, p.recoverySleep),
						SystemAction:  "The publisher sleeps and then resumes draining the buffer.",
						UserAction:    "Check broker availability if this recurs.",
						Details:       map[string]any{"topic": p.topicName, "buffered": p.BufferedCount()},
					})
					p.sleepInterruptibly(p.recoverySleep)
					p.setState(PublisherStateRunning)
					break
				}
				// fatal: terminate the worker
				p.audit.LogRecord(AuditRecord{
					ComponentName: p.componentName(),
					Severity:      AuditSeverityException,
					MessageID:     AuditPublisherTerminated,
					Message:       fmt.Sprintf("publisher for topic %s terminating: %v", p.topicName, err),
					SystemAction:  "The worker goroutine exits; no further events are delivered.",
					UserAction:    "Restart the publisher after resolving the broker fault.",
					Details:       map[string]any{"topic": p.topicName, "buffered": p.BufferedCount()},
				})
				return
			}
		}
	}
}

// publishEvent delivers one event with bounded retries. Attempts share a
// single audit record per failure streak so a long outage does not flood the
// audit log. When the retry bound is exhausted the event is dropped, the
// broker handle is recycled and a retryable error is returned so the run
// loop backs off before the next event.
func (p *EventPublisher) publishEvent(event string) error {
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if !p.keepRunning() {
			// stop requested while waiting between attempts
			return nil
		}

		conn, err := p.connection()
		if err != nil {
			lastErr = err
			p.noteFailure(err)
			p.sleepInterruptibly(p.pollInterval)
			continue
		}

		err = conn.Publish(context.Background(), event)
		if err == nil {
			p.mu.Lock()
			p.sentCount++
			p.mu.Unlock()
			if p.inErrorStreak {
				p.inErrorStreak = false
				zap.S().Infow("event delivery recovered",
					"topic", p.topicName, "sent", p.sent())
			}
			return nil
		}

		lastErr = err
		p.noteFailure(err)

		if !IsRetryableTransportError(err) {
			// fatal broker fault: the handle is spent
			p.recycleConnection(err)
			return err
		}
		p.sleepInterruptibly(p.pollInterval)
	}

	// retry bound exhausted: drop this event and recycle the handle so the
	// next one starts clean
	p.recycleConnection(lastErr)
	return NewTransientTransportError(ErrCodeEventSendFailed,
		fmt.Sprintf("dropped event for topic %s after %d attempts", p.topicName, p.maxRetries),
		lastErr)
}

// connection returns the worker's broker handle, creating it on first use or
// after a recycle.
func (p *EventPublisher) connection() (TopicConnector, error) {
	if p.conn != nil {
		return p.conn, nil
	}
	conn, err := p.factory()
	if err != nil {
		return nil, NewTransientTransportError(ErrCodeTopicUnavailable,
			fmt.Sprintf("cannot connect to topic %s", p.topicName), err)
	}
	p.conn = conn
	return conn, nil
}

// recycleConnection closes and discards the current handle.
func (p *EventPublisher) recycleConnection(cause error) {
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		zap.S().Warnw("error closing topic connection during recycle",
			"topic", p.topicName, "error", err)
	}
	p.conn = nil
	p.audit.LogRecord(AuditRecord{
		ComponentName: p.componentName(),
		Severity:      AuditSeverityWarning,
		MessageID:     AuditConnectionRecycled,
		Message:       fmt.Sprintf("recycled broker connection for topic %s", p.topicName),
		SystemAction:  "The handle is closed; a fresh one is created on the next send.",
		UserAction:    "No action needed unless recycling recurs persistently.",
		Details:       map[string]any{"topic": p.topicName, "cause": fmt.Sprint(cause)},
	})
}

// noteFailure emits one audit record at the start of a failure streak.
// Subsequent failures in the same streak only bump counters.
func (p *EventPublisher) noteFailure(err error) {
	if p.inErrorStreak {
		return
	}
	p.inErrorStreak = true
	p.audit.LogRecord(AuditRecord{
		ComponentName: p.componentName(),
		Severity:      AuditSeverityError,
		MessageID:     AuditEventSendErrorLoop,
		Message:       fmt.Sprintf("event send to topic %s failing: %v", p.topicName, err),
		SystemAction:  "The publisher retries; events stay buffered meanwhile.",
		UserAction:    "Check the broker and the topic configuration.",
		Details: map[string]any{
			"topic":    p.topicName,
			"sent":     p.sent(),
			"buffered": p.BufferedCount(),
		},
	})
}

func (p *EventPublisher) sent() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sentCount
}

// sleepInterruptibly sleeps in short slices so a stop request is noticed
// promptly even during the long recovery pause.
func (p *EventPublisher) sleepInterruptibly(d time.Duration) {
	const slice = 100 * time.Millisecond
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !p.keepRunning() {
			return
		}
		remaining := time.Until(deadline)
		if remaining > slice {
			remaining = slice
		}
		time.Sleep(remaining)
	}
}

// finish releases the broker handle exactly once and marks the publisher
// stopped.
func (p *EventPublisher) finish() {
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			zap.S().Warnw("error closing topic connection on shutdown",
				"topic", p.topicName, "error", err)
		}
		p.conn = nil
	}

	p.mu.Lock()
	p.running = false
	p.state = PublisherStateStopped
	buffered := len(p.buffer)
	sent := p.sentCount
	p.mu.Unlock()

	p.audit.LogRecord(AuditRecord{
		ComponentName: p.componentName(),
		Severity:      AuditSeverityShutdown,
		MessageID:     AuditPublisherShutdown,
		Message:       fmt.Sprintf("event publisher for topic %s stopped", p.topicName),
		Details: map[string]any{
			"topic":    p.topicName,
			"sent":     sent,
			"buffered": buffered,
		},
	})
	close(p.done)
}
