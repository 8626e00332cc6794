package taskqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/infrastructure/scheduler"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu         sync.Mutex
	declared   []string
	published  []amqp.Publishing
	keys       []string
	prefetch   int
	deliveries chan amqp.Delivery
	publishErr error
	closed     bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 10)}
}

func (f *fakeChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if durable {
		f.declared = append(f.declared, name)
	}
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	f.prefetch = prefetchCount
	return nil
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Consume(_, _ string, autoAck, _, _, _ bool, _ amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("auto ack not expected")
	}
	return f.deliveries, nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

// ackRecorder records how each delivery was settled
type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
	rejects int
	settled chan struct{}
}

func newAckRecorder() *ackRecorder {
	return &ackRecorder{settled: make(chan struct{}, 10)}
}

func (a *ackRecorder) Ack(uint64, bool) error {
	a.mu.Lock()
	a.acks++
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *ackRecorder) Nack(_ uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *ackRecorder) Reject(uint64, bool) error {
	a.mu.Lock()
	a.rejects++
	a.mu.Unlock()
	a.settled <- struct{}{}
	return nil
}

func (a *ackRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.settled:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery was not settled")
	}
}

func delivery(t *testing.T, ack amqp.Acknowledger, msg DispatchMessage, redelivered bool) amqp.Delivery {
	t.Helper()
	body, err := msg.Encode()
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

func TestDispatchMessage(t *testing.T) {
	msg := DispatchMessage{TenantID: uuid.New(), CampaignID: uuid.New()}
	body, err := msg.Encode()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"tenant_id"`)
	assert.Contains(t, string(body), `"campaign_id"`)

	decoded, err := DecodeDispatchMessage(body)
	require.NoError(t, err)
	assert.Equal(t, msg, decoded)

	_, err = DispatchMessage{TenantID: uuid.New()}.Encode()
	assert.ErrorIs(t, err, ErrInvalidMessage)

	for _, body := range []string{"not json", `{"tenant_id":"` + uuid.NewString() + `"}`, `{}`} {
		_, err := DecodeDispatchMessage([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidMessage, body)
	}
}

func TestPublisher_Enqueue(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, declare(ch, DefaultQueueName))
	p := newPublisher(&connection{ch: ch, queue: DefaultQueueName}, nil)
	tenantID, campaignID := uuid.New(), uuid.New()

	require.NoError(t, p.Enqueue(context.Background(), tenantID, campaignID))

	assert.Equal(t, []string{DefaultQueueName}, ch.declared)
	require.Len(t, ch.published, 1)
	pub := ch.published[0]
	assert.Equal(t, DefaultQueueName, ch.keys[0])
	assert.Equal(t, amqp.Persistent, pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
	msg, err := DecodeDispatchMessage(pub.Body)
	require.NoError(t, err)
	assert.Equal(t, campaignID, msg.CampaignID)

	ch.publishErr = errors.New("channel closed")
	assert.Error(t, p.Enqueue(context.Background(), tenantID, campaignID))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Enqueue(ctx, tenantID, campaignID), context.Canceled)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestConsumer_Settlement(t *testing.T) {
	transient := errors.New("claim store unavailable")
	permanent := errors.New("campaign not found")
	policy := func(err error) bool { return !errors.Is(err, permanent) }

	tests := []struct {
		name        string
		result      error
		redelivered bool
		wantAck     int
		wantNack    int
	}{
		{"success acks", nil, false, 1, 0},
		{"transient failure requeues once", transient, false, 0, 1},
		{"redelivered failure acks", transient, true, 1, 0},
		{"permanent failure acks", permanent, false, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := newFakeChannel()
			msg := DispatchMessage{TenantID: uuid.New(), CampaignID: uuid.New()}
			var got DispatchMessage
			exec := scheduler.DispatchFunc(func(_ context.Context, tid, cid uuid.UUID) error {
				got = DispatchMessage{TenantID: tid, CampaignID: cid}
				return tt.result
			})
			c := newConsumer(&connection{ch: ch, queue: DefaultQueueName}, 3, exec, WithConsumerRetryPolicy(policy))

			ack := newAckRecorder()
			ch.deliveries <- delivery(t, ack, msg, tt.redelivered)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- c.Run(ctx) }()
			ack.wait(t)
			cancel()
			assert.ErrorIs(t, <-done, context.Canceled)

			assert.Equal(t, 3, ch.prefetch)
			assert.Equal(t, msg, got)
			assert.Equal(t, tt.wantAck, ack.acks)
			assert.Equal(t, tt.wantNack, ack.nacks)
			if tt.wantNack > 0 {
				assert.True(t, ack.requeue[0])
			}
		})
	}
}

func TestConsumer_InvalidMessageRejected(t *testing.T) {
	ch := newFakeChannel()
	called := false
	c := newConsumer(&connection{ch: ch, queue: DefaultQueueName}, 1, scheduler.DispatchFunc(func(context.Context, uuid.UUID, uuid.UUID) error {
		called = true
		return nil
	}))

	ack := newAckRecorder()
	ch.deliveries <- amqp.Delivery{Acknowledger: ack, Body: []byte("garbage")}
	close(ch.deliveries)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.False(t, called)
	assert.Equal(t, 1, ack.rejects)
}
