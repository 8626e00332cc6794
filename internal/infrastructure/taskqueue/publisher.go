package taskqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/infrastructure/config"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// Publisher enqueues dispatch requests on the durable queue
type Publisher struct {
	mu     sync.Mutex
	conn   *connection
	logger *zap.Logger
}

// NewPublisher connects to the broker and declares the queue
func NewPublisher(cfg config.QueueConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return newPublisher(conn, logger), nil
}

func newPublisher(conn *connection, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Enqueue publishes a persistent dispatch request for the campaign
func (p *Publisher) Enqueue(ctx context.Context, tenantID, campaignID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := DispatchMessage{TenantID: tenantID, CampaignID: campaignID}.Encode()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.conn.ch.Publish(
		"",
		p.conn.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish dispatch request: %w", err)
	}

	p.logger.Debug("Dispatch request published",
		zap.String("queue", p.conn.queue),
		zap.String("tenant_id", tenantID.String()),
		zap.String("campaign_id", campaignID.String()),
	)
	return nil
}

// Close closes the channel and connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.close()
}
