package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingHandler struct {
	mu      sync.Mutex
	types   []string
	handled []shared.DomainEvent
	err     error
}

func (h *recordingHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func newCampaign(t *testing.T) *campaign.Campaign {
	t.Helper()
	c, err := campaign.NewCampaign(uuid.New(), "Spring promo", campaign.MailClassFirstClass, campaign.MailSize6x9)
	require.NoError(t, err)
	return c
}

func TestInMemoryEventBus_Routing(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	c := newCampaign(t)

	created := &recordingHandler{types: []string{campaign.EventTypeCampaignCreated}}
	all := &recordingHandler{}
	bus.Subscribe(created)
	bus.Subscribe(all)

	require.NoError(t, bus.Publish(context.Background(),
		campaign.NewCampaignCreatedEvent(c),
		campaign.NewCampaignCancelledEvent(c),
		nil,
	))

	assert.Len(t, created.handled, 1)
	assert.Len(t, all.handled, 2)

	bus.Unsubscribe(created)
	require.NoError(t, bus.Publish(context.Background(), campaign.NewCampaignCreatedEvent(c)))
	assert.Len(t, created.handled, 1)
	assert.Len(t, all.handled, 3)
}

func TestInMemoryEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	c := newCampaign(t)

	failing := &recordingHandler{err: errors.New("boom")}
	panicking := &HandlerFunc{Fn: func(context.Context, shared.DomainEvent) error { panic("bad handler") }}
	after := &recordingHandler{}
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(after)

	err := bus.Publish(context.Background(), campaign.NewCampaignCreatedEvent(c))
	assert.NoError(t, err)
	assert.Len(t, after.handled, 1)
	assert.Equal(t, int64(2), bus.Failures())
}

func TestHandlerRegistry(t *testing.T) {
	r := NewHandlerRegistry()
	h1 := &recordingHandler{}
	h2 := &recordingHandler{}
	r.Register(h1, "A", "B")
	r.Register(h2)

	assert.Equal(t, 3, r.Len())
	assert.Len(t, r.GetHandlers("A"), 2)
	assert.Len(t, r.GetHandlers("C"), 1)

	r.Unregister(h1)
	assert.Equal(t, 1, r.Len())
	assert.Len(t, r.GetHandlers("A"), 1)
}

func TestCampaignAuditHandler(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	bus := NewInMemoryEventBus(nil)
	bus.Subscribe(NewCampaignAuditHandler(zap.New(core)))

	c := newCampaign(t)
	require.NoError(t, bus.Publish(context.Background(),
		campaign.NewCampaignCreatedEvent(c),
		campaign.NewCampaignDispatchCompletedEvent(c, 0),
		campaign.NewCampaignDispatchCompletedEvent(c, 2),
		campaign.NewRecipientStatusChangedEvent(&campaign.Recipient{}, campaign.RecipientStatusSent, campaign.RecipientStatusInTransit),
	))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "Campaign event", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(2), entries[2].ContextMap()["integrity_errors"])
}
