package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lychee-technology/cohort"
	"go.uber.org/zap"
)

// RedisTopicConnector binds a cohort topic to one redis pub/sub channel.
// Each handle owns its own client, so recycling a connector after a broker
// fault starts from a clean connection.
type RedisTopicConnector struct {
	client  *goredis.Client
	channel string

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	cancelSub context.CancelFunc
}

// NewRedisTopicConnector dials redis and verifies the connection before
// returning the handle.
func NewRedisTopicConnector(cfg cohort.RedisConfig) (*RedisTopicConnector, error) {
	if cfg.Addr == "" {
		return nil, cohort.NewInvalidParameterError(cohort.ErrCodeTopicUnavailable,
			"redis address must not be empty")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "cohort.typedefs"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, cohort.NewTransientTransportError(cohort.ErrCodeTopicUnavailable,
			fmt.Sprintf("redis ping to %s failed", cfg.Addr), err)
	}

	return &RedisTopicConnector{client: client, channel: channel}, nil
}

// NewRedisTopicConnectorFactory adapts the constructor to the publisher's
// factory contract.
func NewRedisTopicConnectorFactory(cfg cohort.RedisConfig) cohort.TopicConnectorFactory {
	return func() (cohort.TopicConnector, error) {
		return NewRedisTopicConnector(cfg)
	}
}

// Publish sends one event payload to the channel. Network-level failures are
// retryable; publishing on a closed handle is fatal for the handle.
func (c *RedisTopicConnector) Publish(ctx context.Context, event string) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return cohort.NewFatalTransportError(cohort.ErrCodeConnectionClosed,
			"publish on a closed topic connection", nil)
	}

	if err := c.client.Publish(ctx, c.channel, event).Err(); err != nil {
		return classifyRedisError(err)
	}
	return nil
}

// Subscribe starts a receive goroutine delivering channel payloads to the
// handler. It is meant to be called once per handle.
func (c *RedisTopicConnector) Subscribe(handler cohort.EventHandler) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancelSub = cancel
	c.mu.Unlock()

	sub := c.client.Subscribe(ctx, c.channel)

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				handler(m.Payload)
			}
		}
	}()
}

// Close releases the client. Safe to call more than once.
func (c *RedisTopicConnector) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		cancel := c.cancelSub
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		err = c.client.Close()
		if err != nil {
			zap.S().Warnw("error closing redis topic client", "channel", c.channel, "error", err)
		}
	})
	return err
}

// classifyRedisError decides whether a publish failure is worth retrying on
// the same handle. Timeouts and connection-level faults are transient;
// anything else spends the handle.
func classifyRedisError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return cohort.NewTransientTransportError(cohort.ErrCodeEventSendFailed,
			"redis publish failed", err)
	}
	if errors.Is(err, goredis.ErrClosed) {
		return cohort.NewFatalTransportError(cohort.ErrCodeConnectionClosed,
			"redis client closed", err)
	}
	// command errors (wrong type, auth, protocol) will not heal with a retry
	// on the same handle
	return cohort.NewFatalTransportError(cohort.ErrCodeEventSendFailed,
		"redis publish rejected", err)
}
