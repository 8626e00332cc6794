package taskqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/postcard/backend/internal/infrastructure/scheduler"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ErrChannelClosed is returned by Run when the broker closes the delivery channel
var ErrChannelClosed = errors.New("delivery channel closed")

// Consumer runs dispatch requests taken from the queue. A delivery is acked
// once its dispatch finishes. A retryable failure is requeued once; a
// redelivered message that fails again is acked and left to the next send.
type Consumer struct {
	conn        *connection
	prefetch    int
	executor    scheduler.DispatchExecutor
	shouldRetry scheduler.RetryPolicy
	logger      *zap.Logger
}

// ConsumerOption configures a Consumer
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the logger
func WithConsumerLogger(logger *zap.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithConsumerRetryPolicy replaces the default scheduler.RetryAll policy
func WithConsumerRetryPolicy(p scheduler.RetryPolicy) ConsumerOption {
	return func(c *Consumer) {
		if p != nil {
			c.shouldRetry = p
		}
	}
}

// NewConsumer connects to the broker and declares the queue
func NewConsumer(cfg config.QueueConfig, executor scheduler.DispatchExecutor, opts ...ConsumerOption) (*Consumer, error) {
	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	return newConsumer(conn, prefetch, executor, opts...), nil
}

func newConsumer(conn *connection, prefetch int, executor scheduler.DispatchExecutor, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		conn:        conn,
		prefetch:    prefetch,
		executor:    executor,
		shouldRetry: scheduler.RetryAll,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled or the broker closes the channel
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.conn.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}
	deliveries, err := c.conn.ch.Consume(
		c.conn.queue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Dispatch consumer running",
		zap.String("queue", c.conn.queue),
		zap.Int("prefetch", c.prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrChannelClosed
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	msg, err := DecodeDispatchMessage(d.Body)
	if err != nil {
		c.logger.Error("Dropping invalid dispatch message",
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		c.settle(d.Reject(false))
		return
	}

	log := c.logger.With(
		zap.String("tenant_id", msg.TenantID.String()),
		zap.String("campaign_id", msg.CampaignID.String()),
		zap.Bool("redelivered", d.Redelivered),
	)

	err = c.executor.Dispatch(ctx, msg.TenantID, msg.CampaignID)
	if err == nil {
		log.Info("Dispatch request completed")
		c.settle(d.Ack(false))
		return
	}

	if !d.Redelivered && c.shouldRetry(err) {
		log.Warn("Dispatch request failed, requeueing", zap.Error(err))
		c.settle(d.Nack(false, true))
		return
	}
	log.Error("Dispatch request failed", zap.Error(err))
	c.settle(d.Ack(false))
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.logger.Warn("Failed to settle delivery", zap.Error(err))
	}
}

// Close closes the channel and connection
func (c *Consumer) Close() error {
	return c.conn.close()
}
