package taskqueue

import (
	"fmt"

	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/streadway/amqp"
)

// DefaultQueueName is used when no queue name is configured
const DefaultQueueName = "postcard_campaign_dispatch"

// channel is the subset of *amqp.Channel used here
type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// connection owns the broker connection and one channel
type connection struct {
	conn  *amqp.Connection
	ch    channel
	queue string
}

func dial(cfg config.QueueConfig) (*connection, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	name := cfg.QueueName
	if name == "" {
		name = DefaultQueueName
	}
	if err := declare(ch, name); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &connection{conn: conn, ch: ch, queue: name}, nil
}

// declare creates the durable dispatch queue if it does not exist
func declare(ch channel, name string) error {
	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}

func (c *connection) close() error {
	var firstErr error
	if c.ch != nil {
		firstErr = c.ch.Close()
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
