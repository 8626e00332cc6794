package event

import (
	"context"

	"github.com/postcard/backend/internal/domain/campaign"
	"github.com/postcard/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// HandlerFunc adapts a function to shared.EventHandler
type HandlerFunc struct {
	Types []string
	Fn    func(ctx context.Context, event shared.DomainEvent) error
}

// Handle calls Fn
func (h *HandlerFunc) Handle(ctx context.Context, event shared.DomainEvent) error {
	return h.Fn(ctx, event)
}

// EventTypes returns Types
func (h *HandlerFunc) EventTypes() []string {
	return h.Types
}

// CampaignAuditHandler writes campaign lifecycle events to the structured log
type CampaignAuditHandler struct {
	logger *zap.Logger
}

// NewCampaignAuditHandler creates the handler
func NewCampaignAuditHandler(logger *zap.Logger) *CampaignAuditHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CampaignAuditHandler{logger: logger.Named("campaign_audit")}
}

// EventTypes lists the campaign events that are audited
func (h *CampaignAuditHandler) EventTypes() []string {
	return []string{
		campaign.EventTypeCampaignCreated,
		campaign.EventTypeCampaignStatusChanged,
		campaign.EventTypeCampaignSendRequested,
		campaign.EventTypeCampaignCancelled,
		campaign.EventTypeCampaignFinalized,
		campaign.EventTypeCampaignDispatchCompleted,
	}
}

// Handle logs the event with its campaign-specific fields
func (h *CampaignAuditHandler) Handle(_ context.Context, event shared.DomainEvent) error {
	fields := []zap.Field{
		zap.String("event_type", event.EventType()),
		zap.String("tenant_id", event.TenantID().String()),
		zap.String("campaign_id", event.AggregateID().String()),
		zap.Time("occurred_at", event.OccurredAt()),
	}

	switch e := event.(type) {
	case *campaign.CampaignStatusChangedEvent:
		fields = append(fields,
			zap.String("old_status", string(e.OldStatus)),
			zap.String("new_status", string(e.NewStatus)))
	case *campaign.CampaignFinalizedEvent:
		fields = append(fields,
			zap.String("status", string(e.Status)),
			zap.Int("sent", e.SentCount),
			zap.Int("failed", e.FailedCount),
			zap.Int64("actual_cost_cents", e.ActualCost))
	case *campaign.CampaignDispatchCompletedEvent:
		fields = append(fields,
			zap.String("status", string(e.Status)),
			zap.Int("sent", e.SentCount),
			zap.Int("failed", e.FailedCount),
			zap.Int("integrity_errors", e.IntegrityErrors),
			zap.Bool("charged", e.Charged))
		if e.IntegrityErrors > 0 {
			h.logger.Error("Campaign dispatch completed with data integrity errors", fields...)
			return nil
		}
	}

	h.logger.Info("Campaign event", fields...)
	return nil
}
